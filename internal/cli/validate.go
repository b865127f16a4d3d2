package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tillsync/tillsync/internal/registry"
)

// ValidationResult holds validation output for JSON mode.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Hash     string       `json:"hash,omitempty"`
	Entities []EntityPlan `json:"entities,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// EntityPlan describes one entity's place in the sync plan.
type EntityPlan struct {
	Name       string   `json:"name"`
	Rank       int      `json:"rank"`
	NaturalKey string   `json:"natural_key,omitempty"`
	References []string `json:"references,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <registry-file>",
		Short: "Validate an entity registry and print the sync plan",
		Long: `Compile and validate a CUE entity registry without touching the
database or the backend. Prints the entities in the order the engine will
sync them, with their dependency rank, natural key and references.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	reg, err := registry.CompileFile(path)
	if err != nil {
		var confErr *registry.ConfigurationError
		detail := err.Error()
		if errors.As(err, &confErr) {
			detail = confErr.Error()
		}
		if opts.Format == "json" {
			_ = formatter.Success(ValidationResult{Valid: false, Error: detail})
		} else {
			_ = formatter.Error("registry is invalid", detail)
		}
		return WrapExitError(ExitFailure, "registry is invalid", err)
	}

	hash, err := reg.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "hashing registry", err)
	}

	result := ValidationResult{Valid: true, Hash: hash}
	for _, entity := range reg.EntitiesInDependencyOrder() {
		result.Entities = append(result.Entities, EntityPlan{
			Name:       entity.Name,
			Rank:       entity.Rank,
			NaturalKey: entity.NaturalKey,
			References: referencedEntities(entity),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatPlan(result))
	return nil
}

// referencedEntities lists the distinct entities an entity's foreign keys
// point at, sorted for stable output.
func referencedEntities(e registry.Entity) []string {
	seen := map[string]bool{}
	var refs []string
	for _, target := range e.ForeignKeys {
		if !seen[target] {
			seen[target] = true
			refs = append(refs, target)
		}
	}
	sort.Strings(refs)
	return refs
}

func formatPlan(r ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Registry valid (%d entities, hash %s)\n\n", len(r.Entities), r.Hash[:12])
	fmt.Fprintf(&b, "Sync order:\n")
	for i, e := range r.Entities {
		fmt.Fprintf(&b, "  %2d. %s (rank %d)", i+1, e.Name, e.Rank)
		if e.NaturalKey != "" {
			fmt.Fprintf(&b, " key=%s", e.NaturalKey)
		}
		if len(e.References) > 0 {
			fmt.Fprintf(&b, " refs=%s", strings.Join(e.References, ","))
		}
		fmt.Fprintln(&b)
	}
	return b.String()
}
