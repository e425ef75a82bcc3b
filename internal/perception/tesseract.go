package perception

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// execCommandContext is swapped out in tests.
var execCommandContext = exec.CommandContext

// TesseractConfig configures the tesseract command line engine.
type TesseractConfig struct {
	Binary        string
	Language      string
	PageSegMode   int
	MinConfidence float64
}

// TesseractEngine is an OCREngine that shells out to the tesseract binary.
// The image is streamed on stdin as PNG and results are read back as TSV.
type TesseractEngine struct {
	cfg    TesseractConfig
	logger *zap.Logger
}

// NewTesseractEngine creates an engine. An empty binary defaults to "tesseract".
func NewTesseractEngine(cfg TesseractConfig, logger *zap.Logger) *TesseractEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TesseractEngine{cfg: cfg, logger: logger.Named("tesseract")}
}

func (e *TesseractEngine) args() []string {
	args := []string{"stdin", "stdout", "-l", e.cfg.Language}
	if e.cfg.PageSegMode > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PageSegMode))
	}
	return append(args, "tsv")
}

// Recognize implements OCREngine.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) ([]Recognition, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return nil, fmt.Errorf("tesseract: failed to encode image: %w", err)
	}

	var out, stderr bytes.Buffer
	cmd := execCommandContext(ctx, e.cfg.Binary, e.args()...)
	cmd.Stdin = &in
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	recs, err := parseTSV(&out, e.cfg.MinConfidence)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Recognized lines", zap.Int("lines", len(recs)))
	return recs, nil
}

// lineKey identifies one text line in tesseract's block/paragraph/line hierarchy.
type lineKey struct {
	page, block, par, line int
}

type lineAcc struct {
	words  []string
	bounds image.Rectangle
	conf   float64
	n      int
}

// tsvColumns is the header tesseract writes for tsv output.
var tsvColumns = []string{"level", "page_num", "block_num", "par_num", "line_num", "word_num",
	"left", "top", "width", "height", "conf", "text"}

// parseTSV groups word rows into line recognitions, dropping words whose
// confidence is below minConf.
func parseTSV(r io.Reader, minConf float64) ([]Recognition, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Tesseract does not quote fields, so a word may start or end with '"'.
	readRow := func() ([]string, bool) {
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			return strings.SplitN(line, "\t", len(tsvColumns)), true
		}
		return nil, false
	}

	header, ok := readRow()
	if !ok {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("tesseract: failed to read tsv header: %w", err)
		}
		return nil, nil
	}
	if len(header) < len(tsvColumns) || header[0] != tsvColumns[0] {
		return nil, fmt.Errorf("tesseract: unexpected tsv header %q", header)
	}

	lines := make(map[lineKey]*lineAcc)
	var order []lineKey

	for {
		row, ok := readRow()
		if !ok {
			break
		}
		if len(row) < len(tsvColumns) || row[0] != "5" {
			// Only level 5 rows carry words.
			continue
		}
		text := strings.TrimSpace(row[11])
		if text == "" {
			continue
		}

		nums := make([]int, 10)
		for i := 0; i < 10; i++ {
			n, err := strconv.Atoi(row[i])
			if err != nil {
				return nil, fmt.Errorf("tesseract: bad %s value %q: %w", tsvColumns[i], row[i], err)
			}
			nums[i] = n
		}
		conf, err := strconv.ParseFloat(row[10], 64)
		if err != nil {
			return nil, fmt.Errorf("tesseract: bad conf value %q: %w", row[10], err)
		}
		if conf < minConf {
			continue
		}

		key := lineKey{page: nums[1], block: nums[2], par: nums[3], line: nums[4]}
		rect := image.Rect(nums[6], nums[7], nums[6]+nums[8], nums[7]+nums[9])
		acc, ok := lines[key]
		if !ok {
			acc = &lineAcc{bounds: rect}
			lines[key] = acc
			order = append(order, key)
		}
		acc.words = append(acc.words, text)
		acc.bounds = acc.bounds.Union(rect)
		acc.conf += conf
		acc.n++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tesseract: failed to read tsv row: %w", err)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.page != b.page {
			return a.page < b.page
		}
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})

	recs := make([]Recognition, 0, len(order))
	for _, key := range order {
		acc := lines[key]
		recs = append(recs, Recognition{
			Text:       strings.Join(acc.words, " "),
			Bounds:     acc.bounds,
			Confidence: acc.conf / float64(acc.n),
		})
	}
	return recs, nil
}
