package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joeblew999/plat-polygons/internal/identity"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [text...]",
		Short: "Print the polygon identity of each argument, or of each stdin line",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, a := range args {
					fmt.Fprintf(out, "%d\t%s\n", identity.Hash(a), a)
				}
				return nil
			}

			sc := bufio.NewScanner(os.Stdin)
			sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
			for sc.Scan() {
				fmt.Fprintf(out, "%d\t%s\n", identity.Hash(sc.Text()), sc.Text())
			}
			return sc.Err()
		},
	}
}
