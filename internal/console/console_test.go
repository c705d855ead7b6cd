package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/srg/sppcheck/internal/testutils"
	"github.com/stretchr/testify/assert"
)

func TestPrinterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Info("Scanning for Bluetooth devices... (duration: %s)", "10s")
	p.Success("Found %q!", "RobotSpider")
	p.Warning("No services found on device")
	p.Error("Connection failed: %v", "host is down")
	p.Blank()
	p.Println("  • %s (%s)", "Phone", "11:22:33:44:55:66")

	expected := `ℹ Scanning for Bluetooth devices... (duration: 10s)
✓ Found "RobotSpider"!
⚠ No services found on device
✗ Connection failed: host is down

  • Phone (11:22:33:44:55:66)
`
	testutils.NewTextAsserter(t, testutils.WithIgnoreTrailingWhitespace(false)).Assert(buf.String(), expected)
}

func TestPrinterHeader(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Header("Test Failed")

	rule := strings.Repeat("=", 60)
	assert.Equal(t, "\n"+rule+"\n  Test Failed\n"+rule+"\n\n", buf.String())
}

func TestPrinterColors(t *testing.T) {
	t.Run("buffers are not terminals", func(t *testing.T) {
		var buf bytes.Buffer
		assert.False(t, IsTerminal(&buf))

		New(&buf).Success("ok")
		assert.NotContains(t, buf.String(), "\x1b[")
	})

	t.Run("forced colors", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, WithColor(true)).Success("ok")

		out := buf.String()
		assert.Contains(t, out, "\x1b[92m", "success MUST be bright green")
		assert.Equal(t, "✓ ok\n", testutils.StripANSI(out))
	})

	t.Run("forced off", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, WithColor(true), WithColor(false)).Error("bad")
		assert.Equal(t, "✗ bad\n", buf.String())
	})
}

func TestPrinterConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Info("line")
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		assert.Equal(t, "ℹ line", line)
	}
}
