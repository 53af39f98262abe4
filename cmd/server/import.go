package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// importEquipment is the --kind value that loads the equipment hierarchy
// instead of a log table.
const importEquipment = "equipment"

// readRows decodes a JSON array of objects or one object per line.
func readRows(r io.Reader) ([]models.RawRow, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		var rows []models.RawRow
		if err := dec.Decode(&rows); err != nil {
			return nil, errors.Wrap(err, "decode JSON array")
		}
		return rows, nil
	}

	var rows []models.RawRow
	for {
		var row models.RawRow
		err := dec.Decode(&row)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decode row %d", len(rows)+1)
		}
		rows = append(rows, row)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := br.ReadByte(); err != nil {
				return 0, err
			}
			continue
		}
		return b[0], nil
	}
}

// importInto loads rows read from r into store as kind.
func importInto(ctx context.Context, store *source.SQLStore, kind string, r io.Reader) (int, error) {
	var load func([]models.RawRow) (int, error)
	if strings.EqualFold(kind, importEquipment) {
		load = func(rows []models.RawRow) (int, error) { return store.ImportEquipment(ctx, rows) }
	} else {
		k, err := models.ParseKind(kind)
		if err != nil {
			return 0, err
		}
		load = func(rows []models.RawRow) (int, error) { return store.Import(ctx, k, rows) }
	}

	rows, err := readRows(r)
	if err != nil {
		return 0, err
	}
	return load(rows)
}

func runImport(cmd *cobra.Command, opts *Options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Source.UpstreamURL != "" {
		return errors.New("import needs a SQL source, but an upstream URL is configured")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	f, err := os.Open(opts.ImportFile)
	if err != nil {
		return errors.Wrap(err, "open import file")
	}
	defer f.Close()

	ctx := cmd.Context()
	store, err := source.OpenSQLStore(ctx, cfg.Source.Driver, cfg.Source.DSN, loc)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.CreateSchema(ctx); err != nil {
		return err
	}

	n, err := importInto(ctx, store, opts.ImportKind, f)
	if err != nil {
		return err
	}
	log.Info().Str("kind", opts.ImportKind).Str("file", opts.ImportFile).Int("rows", n).Msg("import finished")
	cmd.Printf("imported %d rows\n", n)
	return nil
}
