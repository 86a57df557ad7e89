package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/gamestats/internal/config"
	"github.com/freeeve/gamestats/internal/graph"
	"github.com/freeeve/gamestats/internal/store"
	"github.com/freeeve/gamestats/internal/store/backends"
)

func main() {
	cfg, err := config.LoadExport()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := backends.Open(ctx, cfg.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	sum, err := st.Summary(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Store stats: %d positions, %d transitions\n", sum.Positions, sum.Transitions)

	outFile, err := os.Create(cfg.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	var out io.Writer = outFile
	var enc *zstd.Encoder
	if strings.HasSuffix(cfg.Output, ".zst") {
		enc, err = zstd.NewWriter(outFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "zstd writer: %v\n", err)
			os.Exit(1)
		}
		out = enc
	}

	exported, err := export(ctx, st, out, cfg.MinGames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "zstd close: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("\nDone! Exported %d positions to %s\n", exported, cfg.Output)
}

// export writes one CSV row per position with at least minGames games.
func export(ctx context.Context, st store.Reader, w io.Writer, minGames uint64) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"position", "games", "wins", "losses", "draws", "win_rate", "loss_rate", "draw_rate"}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	var exported int
	var writeErr error
	err := st.EachPosition(ctx, func(rec graph.PositionRecord) bool {
		if rec.Total() < minGames {
			return true
		}
		row := []string{
			rec.ID,
			strconv.FormatUint(rec.Total(), 10),
			strconv.FormatUint(rec.Wins, 10),
			strconv.FormatUint(rec.Losses, 10),
			strconv.FormatUint(rec.Draws, 10),
			strconv.FormatFloat(rec.WinRate, 'f', 6, 64),
			strconv.FormatFloat(rec.LossRate, 'f', 6, 64),
			strconv.FormatFloat(rec.DrawRate, 'f', 6, 64),
		}
		if writeErr = writer.Write(row); writeErr != nil {
			return false
		}
		exported++
		if exported%1000000 == 0 {
			fmt.Printf("Exported %d positions\n", exported)
		}
		return true
	})
	if err != nil {
		return exported, err
	}
	if writeErr != nil {
		return exported, fmt.Errorf("write row: %w", writeErr)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return exported, fmt.Errorf("csv writer error: %w", err)
	}
	return exported, nil
}
