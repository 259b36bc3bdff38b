package ui

import (
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"

	"github.com/light-rec/lr-ibcf/internal/config"
)

// ShowMenu asks the user to pick one option and returns its index
func ShowMenu(message string, options []string) (int, error) {
	var selected int
	prompt := &survey.Select{
		Message: message,
		Options: options,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return 0, err
	}

	return selected, nil
}

// PromptConfig walks the user through the ranking and storage settings,
// starting from the values in cfg
func PromptConfig(cfg *config.Config) error {
	capacity := strconv.Itoa(cfg.TopK.Capacity)
	if err := survey.AskOne(&survey.Input{
		Message: "How many similar items should a query return?",
		Default: capacity,
	}, &capacity, survey.WithValidator(survey.Required), survey.WithValidator(positiveInt)); err != nil {
		return err
	}
	cfg.TopK.Capacity, _ = strconv.Atoi(capacity)

	var policy string
	if err := survey.AskOne(&survey.Select{
		Message: "Items nobody has rated yet:",
		Options: []string{string(config.ZeroMagnitudeSkip), string(config.ZeroMagnitudeZero)},
		Default: string(cfg.TopK.ZeroMagnitude),
		Description: func(value string, index int) string {
			if value == string(config.ZeroMagnitudeSkip) {
				return "leave them out of results"
			}
			return "rank them with similarity 0"
		},
	}, &policy); err != nil {
		return err
	}
	cfg.TopK.ZeroMagnitude = config.ZeroMagnitudePolicy(policy)

	if err := survey.AskOne(&survey.Input{
		Message: "Catalog directory:",
		Default: cfg.Catalog.Dir,
	}, &cfg.Catalog.Dir, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	var driver string
	if err := survey.AskOne(&survey.Select{
		Message: "Where should item vectors be stored?",
		Options: []string{string(config.StoreSQLite), string(config.StoreMemory)},
		Default: string(cfg.Store.Driver),
	}, &driver); err != nil {
		return err
	}
	cfg.Store.Driver = config.StoreDriver(driver)

	return nil
}

// PromptYesNo asks a yes/no question
func PromptYesNo(message string, defaultValue bool) (bool, error) {
	answer := defaultValue
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: defaultValue}, &answer); err != nil {
		return false, err
	}
	return answer, nil
}

func positiveInt(ans interface{}) error {
	s, _ := ans.(string)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

// ShowSection prints a bold section heading
func ShowSection(title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("\n%s\n", title)
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✓ %s\n", message)
}

// ShowError displays an error message
func ShowError(message string) {
	red := color.New(color.FgRed, color.Bold)
	red.Printf("✗ %s\n", message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("! %s\n", message)
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	blue := color.New(color.FgBlue)
	blue.Println(message)
}
