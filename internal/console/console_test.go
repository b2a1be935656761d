package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterWritesPlainTextToBuffers(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Info("Checking if %s is healthy", "db")
	p.Warn("Not yet")
	p.Blank()

	assert.Equal(t, "Checking if db is healthy\nNot yet\n\n", buf.String())
}

func TestPrinterLinesAreNotInterleaved(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Lines("=== app ===", "line one", "line two")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 30)
	for i := 0; i < len(lines); i += 3 {
		assert.Equal(t, "=== app ===", lines[i])
		assert.Equal(t, "line one", lines[i+1])
		assert.Equal(t, "line two", lines[i+2])
	}
}

func TestPrompterConfirmRepeatsUntilAnswered(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("maybe\n\nyes please\n"), New(&out))

	ok, err := p.Confirm("Update now?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, strings.Count(out.String(), "Update now? (y/n) "))
}

func TestPrompterAskEOF(t *testing.T) {
	p := NewPrompter(strings.NewReader("git@example.com:org/config.git"), Discard())
	answer, err := p.Ask("url? ")
	require.NoError(t, err)
	assert.Equal(t, "git@example.com:org/config.git", answer)

	_, err = p.Ask("again? ")
	assert.Error(t, err)
}
