package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dnldd/microbot/shared"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultKeep is the default number of game summaries retained.
	DefaultKeep = 3

	summaryPrefix = "summary_"
	summaryExt    = ".yaml"
)

// ReporterConfig represents the configuration for the summary reporter.
type ReporterConfig struct {
	// Dir is the directory summaries are written to.
	Dir string
	// Keep is the number of most recent game summaries retained on cleanup.
	Keep int
	// Logger is the reporter logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ReporterConfig) Validate() error {
	var errs error

	if cfg.Dir == "" {
		errs = errors.Join(errs, fmt.Errorf("results directory cannot be an empty string"))
	}
	if cfg.Keep < 1 {
		errs = errors.Join(errs, fmt.Errorf("keep count must be positive, got %d", cfg.Keep))
	}

	return errs
}

// Reporter logs and writes session summaries.
type Reporter struct {
	cfg *ReporterConfig
}

// NewReporter initializes a new summary reporter.
func NewReporter(cfg *ReporterConfig) (*Reporter, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}

	return &Reporter{cfg: cfg}, nil
}

// filename returns the summary file name of the provided summary. Names
// lead with the end date so they sort chronologically.
func filename(summary *shared.Summary) string {
	return fmt.Sprintf("%s%s_%s%s", summaryPrefix, summary.EndedAt.UTC().Format(shared.FileDateLayout),
		summary.Mode, summaryExt)
}

// Report logs the provided summary and writes it to the results directory.
// Older game summaries beyond the retention count are removed afterwards.
func (r *Reporter) Report(summary *shared.Summary) (string, error) {
	r.cfg.Logger.Info().
		Str("session", summary.SessionID).
		Str("mode", summary.Mode).
		Str("termination", summary.Termination).
		Float64("startingBalance", summary.StartingBalance).
		Float64("finalValue", summary.FinalValue).
		Float64("profitPercent", summary.ProfitPercent).
		Bool("passed", summary.Passed).
		Int("ticks", summary.Ticks).
		Int("skipped", summary.SkippedTicks).
		Int("trades", summary.Trades).
		Int("rejections", summary.Rejections).
		Msg("session summary")

	data, err := yaml.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshalling summary: %w", err)
	}

	err = os.MkdirAll(r.cfg.Dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}

	path := filepath.Join(r.cfg.Dir, filename(summary))
	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return "", fmt.Errorf("writing summary: %w", err)
	}

	r.cfg.Logger.Info().Msgf("summary written to %s", path)

	if summary.Mode == shared.SimulatedGame.String() {
		_, err = r.Cleanup()
		if err != nil {
			return path, err
		}
	}

	return path, nil
}

// Cleanup removes all but the most recent game summaries. Paper and live
// summaries are always preserved. It returns the removed file paths.
func (r *Reporter) Cleanup() ([]string, error) {
	suffix := "_" + shared.SimulatedGame.String() + summaryExt
	matches, err := filepath.Glob(filepath.Join(r.cfg.Dir, summaryPrefix+"*"+suffix))
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}

	if len(matches) <= r.cfg.Keep {
		return nil, nil
	}

	// Newest first.
	sort.Slice(matches, func(i, j int) bool {
		return strings.Compare(filepath.Base(matches[i]), filepath.Base(matches[j])) > 0
	})

	var removed []string
	var errs error
	for _, path := range matches[r.cfg.Keep:] {
		err := os.Remove(path)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("removing %s: %w", path, err))
			continue
		}
		removed = append(removed, path)
	}

	if len(removed) > 0 {
		r.cfg.Logger.Info().Msgf("removed %d old game summaries, kept %d", len(removed), r.cfg.Keep)
	}

	return removed, errs
}

// Load reads a previously written summary.
func Load(path string) (*shared.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	var summary shared.Summary
	err = yaml.Unmarshal(data, &summary)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling summary: %w", err)
	}

	return &summary, nil
}
