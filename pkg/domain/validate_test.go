package domain_test

import (
	"testing"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAutomation() *domain.Automation {
	return &domain.Automation{
		ID:             "auto-1",
		OrganizationID: "org-1",
		Active:         true,
		Triggers: []domain.Trigger{
			{Type: domain.TriggerKeyword, Keywords: []string{"hours"}, MenuID: "M-hours"},
		},
		Menus: []domain.Menu{
			{
				ID:   "M-hours",
				Type: domain.MenuButtons,
				Body: "When?",
				Options: []domain.Option{
					{ID: "today", Title: "Today", Action: domain.SendMessage{Text: "We're open 9-5"}},
					{ID: "more", Title: "More", Action: domain.ShowMenu{MenuID: "M-name"}},
				},
			},
			{
				ID:   "M-name",
				Type: domain.MenuText,
				Body: "What's your name?",
				Next: domain.End{Text: "Thanks!"},
			},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, domain.Validate(validAutomation()))
}

func TestValidate_DanglingReferences(t *testing.T) {
	a := validAutomation()
	a.Triggers[0].MenuID = "missing-trigger-target"
	a.Menus[0].Options[1].Action = domain.ShowMenu{MenuID: "missing-option-target"}
	a.Menus[1].Next = domain.ShowMenu{MenuID: "missing-next-target"}

	err := domain.Validate(a)
	require.Error(t, err)

	errs := domain.ValidationErrors(err)
	require.Len(t, errs, 3)
	assert.Contains(t, err.Error(), "missing-trigger-target")
	assert.Contains(t, err.Error(), "missing-option-target")
	assert.Contains(t, err.Error(), "missing-next-target")
}

func TestValidate_Enumerations(t *testing.T) {
	a := validAutomation()
	a.Triggers = append(a.Triggers, domain.Trigger{Type: "regex", MenuID: "M-hours"})
	a.Menus[0].Type = "carousel"
	a.Settings.UnknownInputBehavior = "shrug"

	errs := domain.ValidationErrors(domain.Validate(a))
	assert.Len(t, errs, 3)
}

func TestValidate_DuplicateIDs(t *testing.T) {
	a := validAutomation()
	a.Menus[0].Options[1].ID = "today"
	a.Menus = append(a.Menus, domain.Menu{ID: "M-name", Type: domain.MenuText, Body: "dup"})

	errs := domain.ValidationErrors(domain.Validate(a))
	require.Len(t, errs, 2)
}

func TestValidate_WelcomeMenu(t *testing.T) {
	a := validAutomation()
	a.Settings.WelcomeOnFirstContact = true
	a.Settings.WelcomeMenuID = "nope"

	err := domain.Validate(a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings.welcome_menu_id")
}
