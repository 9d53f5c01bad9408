// Package i18n holds the panel strings and picks a language for a request.
package i18n

import (
	"golang.org/x/text/language"
)

// Messages are the strings shown in the side panel.
type Messages struct {
	Title     string            `json:"title" yaml:"title" doc:"Panel and layer title"`
	Polygons  string            `json:"polygons" yaml:"polygons" doc:"Polygon list legend"`
	Settings  string            `json:"settings" yaml:"settings" doc:"Settings legend"`
	BtnReload string            `json:"btnReload" yaml:"btnReload" doc:"Reload button caption"`
	Options   map[string]string `json:"options" yaml:"options" doc:"Option labels keyed by option name"`
}

// Option returns the label for an option, falling back to its name.
func (m Messages) Option(name string) string {
	if s, ok := m.Options[name]; ok {
		return s
	}
	return name
}

const title = "MapRaid Polygons"

var supported = []language.Tag{
	language.English, // first tag is the fallback
	language.Ukrainian,
	language.Russian,
}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]Messages{
	language.English: {
		Title:     title,
		Polygons:  "Polygons list",
		Settings:  "Settings",
		BtnReload: "Reload list",
		Options: map[string]string{
			"showLayer":           "Show polygons layer",
			"showPolygonName":     "Show polygon name",
			"loadPolygonsOnStart": "Load polygons on start",
			"fillPolygons":        "Fill polygons with colors 🌈",
		},
	},
	language.Ukrainian: {
		Title:     "Полігони Мап-Рейду",
		Polygons:  "Список полігонів",
		Settings:  "Налаштування",
		BtnReload: "Перезавантажити список",
		Options: map[string]string{
			"showLayer":           "Показувати шар з полігонами",
			"showPolygonName":     "Показувати назву полігону",
			"loadPolygonsOnStart": "Завантажувати полігони при старті",
			"fillPolygons":        "Заливати полігони кольором (красіво 🌈)",
		},
	},
	language.Russian: {
		Title:     "Полигоны Мап-Рейда",
		Polygons:  "Список полигонов",
		Settings:  "Настройки",
		BtnReload: "Перезагрузить список",
		Options: map[string]string{
			"showLayer":           "Показывать слой с полигонами",
			"showPolygonName":     "Показывать название полигона",
			"loadPolygonsOnStart": "Загружать полигоны при старте",
			"fillPolygons":        "Заливать полигоны цветом (красиво 🌈)",
		},
	},
}

// Match picks the best supported language for the given preferences, which
// may be BCP 47 tags or Accept-Language values. Unknown input yields English.
func Match(prefs ...string) language.Tag {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// For returns the messages for the best matching language.
func For(prefs ...string) Messages {
	return catalog[Match(prefs...)]
}

// Languages lists the supported language tags.
func Languages() []string {
	out := make([]string, len(supported))
	for i, t := range supported {
		out[i] = t.String()
	}
	return out
}

// All returns every catalog keyed by language tag.
func All() map[string]Messages {
	out := make(map[string]Messages, len(catalog))
	for t, m := range catalog {
		out[t.String()] = m
	}
	return out
}
