package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"go-rash-triage/internal/analyzer"
	"go-rash-triage/internal/container"
	apperrors "go-rash-triage/internal/errors"
	"go-rash-triage/internal/logger"
	"go-rash-triage/internal/service"
	"go-rash-triage/pkg/validation"
)

type analyzeFlags struct {
	diseases  []string
	ageMonths int
	sex       string
	tempC     float64
	tempF     float64
	json      bool
}

func newAnalyzeCommand() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Score one rash photo from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Keep stdout for the result
			logger.Logger.SetOutput(cmd.ErrOrStderr())

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			contextJSON, err := patientContextJSON(flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}

			c, err := container.NewContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Service().Analyze(cmd.Context(), service.AnalyzeInput{
				RequestID: uuid.NewString(),
				RawInput: analyzer.RawInput{
					Image: &analyzer.Image{
						Data:      data,
						MediaType: mimetype.Detect(data).String(),
						Filename:  args[0],
					},
					Diseases:           flags.diseases,
					PatientContextJSON: contextJSON,
				},
			})
			if err != nil {
				return describeError(err)
			}

			out := cmd.OutOrStdout()
			if flags.json || !isTerminal(out) {
				return writeRawJSON(out, result.Raw)
			}
			_, err = fmt.Fprintln(out, renderResult(result))
			return err
		},
	}

	cmd.Flags().StringSliceVar(&flags.diseases, "diseases", nil, "Labels to score, comma separated (default: all)")
	cmd.Flags().IntVar(&flags.ageMonths, "age-months", 0, "Patient age in months")
	cmd.Flags().StringVar(&flags.sex, "sex", "", "Biological sex, M or F")
	cmd.Flags().Float64Var(&flags.tempC, "temp-c", 0, "Body temperature in Celsius")
	cmd.Flags().Float64Var(&flags.tempF, "temp-f", 0, "Body temperature in Fahrenheit")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the JSON result even on a terminal")
	cmd.MarkFlagsMutuallyExclusive("temp-c", "temp-f")

	return cmd
}

// patientContextJSON encodes only the flags the user set
func patientContextJSON(flags analyzeFlags, changed func(name string) bool) (string, error) {
	fields := map[string]interface{}{}
	if changed("age-months") {
		fields["age_months"] = flags.ageMonths
	}
	if changed("sex") {
		fields["biological_sex"] = strings.ToUpper(strings.TrimSpace(flags.sex))
	}
	switch {
	case changed("temp-c"):
		fields["temperature_celsius"] = flags.tempC
	case changed("temp-f"):
		fields["temperature_celsius"] = validation.FahrenheitToCelsius(flags.tempF)
	}
	if len(fields) == 0 {
		return "", nil
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode patient context: %w", err)
	}
	return string(encoded), nil
}

// describeError renders an AppError the way the HTTP body would read
func describeError(err error) error {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", appErr.Code, appErr.Message)
	if appErr.UpstreamStatus != 0 {
		fmt.Fprintf(&b, " (upstream status %d)", appErr.UpstreamStatus)
	}
	for _, detail := range appErr.Details {
		fmt.Fprintf(&b, "\n  - %s", detail)
	}
	if appErr.Raw != "" {
		fmt.Fprintf(&b, "\nraw model output:\n%s", appErr.Raw)
	}
	return fmt.Errorf("%s", b.String())
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
