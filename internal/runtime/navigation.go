package runtime

import (
	"strconv"
	"strings"

	"github.com/aretw0/menuflow/internal/render"
	"github.com/aretw0/menuflow/pkg/domain"
)

// resolveOption finds the option an input selects.
// Buttons and list menus only accept structured selections. Text menus with
// options also accept the option id, its 1-based number or its title.
func resolveOption(menu *domain.Menu, in Input) (*domain.Option, bool) {
	if in.Kind == domain.InputButtonClick {
		_, optionID := render.ParseSelection(in.SelectionID)
		return menu.Option(optionID)
	}
	if menu.Type != domain.MenuText || in.Kind != domain.InputText {
		return nil, false
	}

	answer := strings.TrimSpace(in.Text)
	if answer == "" {
		return nil, false
	}
	if opt, ok := menu.Option(answer); ok {
		return opt, true
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(answer, ".")); err == nil && n >= 1 && n <= len(menu.Options) {
		return &menu.Options[n-1], true
	}
	for i := range menu.Options {
		if strings.EqualFold(menu.Options[i].Title, answer) {
			return &menu.Options[i], true
		}
	}
	return nil, false
}

// capture writes what a free-text menu stores under key. Media keeps its
// reference under key and any caption under key_caption.
func capture(vars map[string]string, key string, in Input) {
	text := strings.TrimSpace(in.Text)
	switch {
	case in.Media != nil:
		vars[key] = in.Media.URL
		caption := strings.TrimSpace(in.Media.Caption)
		if caption == "" {
			caption = text
		}
		if caption != "" {
			vars[key+"_caption"] = caption
		}
	case text != "":
		vars[key] = text
	case in.SelectionID != "":
		_, optionID := render.ParseSelection(in.SelectionID)
		vars[key] = optionID
	default:
		vars[key] = ""
	}
}
