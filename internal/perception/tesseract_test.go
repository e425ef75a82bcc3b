package perception

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"2\t1\t1\t0\t0\t0\t100\t50\t300\t80\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t100\t50\t300\t30\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t50\t120\t30\t96.5\tSelect\n" +
	"5\t1\t1\t1\t1\t2\t230\t52\t80\t28\t91.0\tYour\n" +
	"5\t1\t1\t1\t1\t3\t320\t50\t80\t30\t12.0\tC0untry\n" +
	"5\t1\t2\t1\t1\t1\t100\t500\t90\t20\t88.0\tContinue\n" +
	"5\t1\t1\t1\t2\t1\t100\t90\t60\t20\t90.0\tor\n" +
	"5\t1\t1\t1\t2\t2\t170\t90\t70\t20\t\t\n"

func TestParseTSV_GroupsWordsIntoLines(t *testing.T) {
	recs, err := parseTSV(strings.NewReader(sampleTSV), 30)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Select Your", recs[0].Text)
	assert.Equal(t, image.Rect(100, 50, 310, 80), recs[0].Bounds)
	assert.InDelta(t, 93.75, recs[0].Confidence, 1e-9)

	assert.Equal(t, "or", recs[1].Text, "lines are ordered by block, paragraph and line")
	assert.Equal(t, "Continue", recs[2].Text)
}

func TestParseTSV_ConfidenceFloorDisabled(t *testing.T) {
	recs, err := parseTSV(strings.NewReader(sampleTSV), 0)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "Select Your C0untry", recs[0].Text)
}

func TestParseTSV_QuotedWordsStayOnTheirLine(t *testing.T) {
	tsv := strings.Join(tsvColumns, "\t") + "\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t96\t\"Get\n" +
		"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t95\tStarted\"\n" +
		"5\t1\t1\t1\t2\t1\t10\t40\t80\t20\t90\tlanguage\n" +
		"5\t1\t2\t1\t1\t1\t10\t80\t60\t20\t91\t\"Hello\n" +
		"5\t1\t3\t1\t1\t1\t10\t120\t60\t20\t92\tcontinue\n" +
		"5\t1\t4\t1\t1\t1\t10\t160\t60\t20\t93\tagree\r\n"

	recs, err := parseTSV(strings.NewReader(tsv), 0)
	require.NoError(t, err)

	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.Text
	}
	assert.Equal(t, []string{`"Get Started"`, "language", `"Hello`, "continue", "agree"}, texts)
	assert.Equal(t, image.Rect(10, 10, 120, 30), recs[0].Bounds)
	assert.InDelta(t, 95.5, recs[0].Confidence, 1e-9)
}

func TestParseTSV_EdgeCases(t *testing.T) {
	recs, err := parseTSV(strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = parseTSV(strings.NewReader("not\ta\theader\n"), 0)
	assert.Error(t, err)

	bad := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"5\t1\t1\t1\t1\t1\tX\t0\t1\t1\t90\tword\n"
	_, err = parseTSV(strings.NewReader(bad), 0)
	assert.ErrorContains(t, err, "left")
}

func TestTesseractEngine_Args(t *testing.T) {
	e := NewTesseractEngine(TesseractConfig{PageSegMode: 11}, nil)
	assert.Equal(t, []string{"stdin", "stdout", "-l", "eng", "--psm", "11", "tsv"}, e.args())

	e = NewTesseractEngine(TesseractConfig{Binary: "/opt/bin/tesseract", Language: "deu"}, nil)
	assert.Equal(t, "/opt/bin/tesseract", e.cfg.Binary)
	assert.Equal(t, []string{"stdin", "stdout", "-l", "deu", "tsv"}, e.args())
}

// mockTesseract re-executes the test binary as a fake tesseract.
func mockTesseract(t *testing.T, output string, exitCode int) {
	t.Helper()
	testExecutable := os.Args[0]
	execCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, testExecutable, cs...)
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"HELPER_OUTPUT="+output,
			fmt.Sprintf("HELPER_EXIT_CODE=%d", exitCode),
		)
		return cmd
	}
	t.Cleanup(func() { execCommandContext = exec.CommandContext })
}

func TestTesseractEngine_Recognize(t *testing.T) {
	mockTesseract(t, sampleTSV, 0)
	e := NewTesseractEngine(TesseractConfig{MinConfidence: 30}, zaptest.NewLogger(t))

	recs, err := e.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Select Your", recs[0].Text)
}

func TestTesseractEngine_ProcessFailure(t *testing.T) {
	mockTesseract(t, "", 1)
	e := NewTesseractEngine(TesseractConfig{}, nil)

	_, err := e.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract:")
	assert.Contains(t, err.Error(), "simulated failure")
}

// TestHelperProcess stands in for the tesseract binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if _, err := png.Decode(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "stdin is not a png: %v\n", err)
		os.Exit(2)
	}
	if os.Getenv("HELPER_EXIT_CODE") != "0" {
		fmt.Fprintln(os.Stderr, "simulated failure")
		os.Exit(1)
	}
	fmt.Fprint(os.Stdout, os.Getenv("HELPER_OUTPUT"))
	os.Exit(0)
}
