package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-thread2page/internal/compiler"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compile [file]",
		Short: "Compile a thread JSON file to page content",
		Long: `Compile a thread path offline and print the page content JSON.

The input is either an array of posts (root first) or an object
{"posts": [...], "exclude_uri": "..."}. Reads stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompile,
	}

	cmd.Flags().String("exclude", "", "URI of a post to leave out (overrides exclude_uri)")
	cmd.Flags().Bool("document", false, "Print title and author along with the content")

	RootCmd.AddCommand(cmd)
}

// threadInput is the object form of the compile input.
type threadInput struct {
	Posts      domain.ThreadPath `json:"posts"`
	ExcludeURI string            `json:"exclude_uri"`
}

func decodeThread(data []byte) (threadInput, error) {
	var in threadInput
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &in.Posts); err != nil {
			return in, fmt.Errorf("decode thread: %w", err)
		}
		return in, nil
	}
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return in, fmt.Errorf("decode thread: %w", err)
	}
	return in, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	exclude, _ := cmd.Flags().GetString("exclude")
	withDoc, _ := cmd.Flags().GetBool("document")
	logger := newLogger(cmd.ErrOrStderr())

	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read thread: %w", err)
	}

	in, err := decodeThread(data)
	if err != nil {
		return err
	}
	if exclude != "" {
		in.ExcludeURI = exclude
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := compiler.New(cfg.Compiler).Compile(in.Posts, in.ExcludeURI)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	for _, warn := range result.Warnings {
		logger.Warn("compile warning", "error", warn)
	}

	out := cmd.OutOrStdout()
	if !withDoc {
		_, err = fmt.Fprintln(out, string(result.Document.Encoded))
		return err
	}

	doc := result.Document
	b, err := json.MarshalIndent(struct {
		Title      string          `json:"title"`
		AuthorName string          `json:"author_name,omitempty"`
		AuthorURL  string          `json:"author_url,omitempty"`
		Content    json.RawMessage `json:"content"`
	}{doc.Title, doc.AuthorName, doc.AuthorURL, doc.Encoded}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
