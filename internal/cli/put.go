package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jacentio/nestdoc/store"
)

func newPutCmd(a *app) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "put [ID]",
		Short: "Create or merge a document",
		Long: `Write a JSON object to the document with the given id, merging its fields
into an existing document. A random id is generated when none is given.
The object is read from --data, or from stdin when --data is empty.
The document id is printed on success.`,
		Example: `  nestdoc put u1 --data '{"name":"Ada"}'
  echo '{"name":"Grace"}' | nestdoc put`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.NewString()
			if len(args) == 1 {
				id = args[0]
			}

			doc, err := readDocument(data, cmd.InOrStdin())
			if err != nil {
				return err
			}

			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := store.Write(cmd.Context(), c, id, doc); err != nil {
				return fmt.Errorf("put %s: %w", id, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Document as a JSON object")

	return cmd
}

// readDocument decodes a JSON object from data, or from r when data is empty.
func readDocument(data string, r io.Reader) (Document, error) {
	if strings.TrimSpace(data) == "" {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = string(raw)
	}
	if strings.TrimSpace(data) == "" {
		return nil, errors.New("no document given: use --data or pipe JSON to stdin")
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if doc == nil {
		return nil, errors.New("parse document: expected a JSON object")
	}
	return doc, nil
}
