package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/groundside/ctdict/internal/logging"
)

const testDict = `
- command:
    name: arm_relay
    opcode: 0x2002
    arguments:
      - name: sequence_id
        type: MSB_U16
        bytes: [0, 1]
      - name: enable
        type: U8
        bytes: 2
        enum:
          0: DISABLED
          1: ENABLED
- packet:
    name: eps_status
    apid: 101
    fields:
      - name: sync
        type: U8
        bytes: 0
        value: 0xA5
      - name: temp
        type: U8
        bytes: 1
        dntoeu:
          equation: raw / 2 + 58
          units: degF
`

func writeTestDict(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.yaml")
	if err := os.WriteFile(path, []byte(testDict), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func captureStdout(w io.Writer) func() {
	orig := os.Stdout
	r, wpipe, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	os.Stdout = wpipe

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(w, r)
		close(done)
	}()

	return func() {
		_ = wpipe.Close()
		<-done
		os.Stdout = orig
	}
}

func TestMain(m *testing.M) {
	_ = logging.Init(logging.Options{Level: "error", Quiet: true})
	os.Exit(m.Run())
}

func TestRunValidate(t *testing.T) {
	path := writeTestDict(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runValidate([]string{path})
	restore()
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(buf.String(), "OK: 1 packet(s), 1 command(s)") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRunValidateBadDict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	bad := `
- packet:
    name: p
    apid: 1
    fields:
      - {name: a, type: U8, bytes: 0}
      - {name: a, type: U8, bytes: 1}
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runValidate([]string{path})
	restore()
	if err == nil {
		t.Fatal("runValidate succeeded on a broken dictionary")
	}
	if !strings.Contains(buf.String(), "duplicate field name") {
		t.Errorf("output does not list the definition error: %q", buf.String())
	}
}

func TestRunEncode(t *testing.T) {
	path := writeTestDict(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runEncode(&encodeFlags{dicts: []string{path}}, "arm_relay",
		[]string{"sequence_id=7", "enable=ENABLED"})
	restore()
	if err != nil {
		t.Fatalf("runEncode: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "20 02 00 07 01" {
		t.Errorf("frame = %q, want \"20 02 00 07 01\"", got)
	}
}

func TestRunDecode(t *testing.T) {
	path := writeTestDict(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runDecode(&decodeFlags{
		dicts:   []string{path},
		packet:  "eps_status",
		hexData: "A5 14",
	})
	restore()
	if err != nil {
		t.Fatalf("runDecode: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "temp") || !strings.Contains(out, "eu=68") {
		t.Errorf("decode output missing EU value: %q", out)
	}
}

func TestRunInfo(t *testing.T) {
	path := writeTestDict(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runInfo([]string{path}, &infoFlags{})
	restore()
	if err != nil {
		t.Fatalf("runInfo: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"eps_status", "arm_relay", "apid=101", "opcode=0x2002"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "20 02 00 07 01", want: []byte{0x20, 0x02, 0x00, 0x07, 0x01}},
		{in: "200200", want: []byte{0x20, 0x02, 0x00}},
		{in: "a5:01", want: []byte{0xA5, 0x01}},
		{in: "abc", wantErr: true},
		{in: "zz", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseHex(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHex(%q) succeeded", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHex(%q): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseHex(%q) = % X, want % X", tt.in, got, tt.want)
		}
	}
}

func TestParseArgValue(t *testing.T) {
	if v := parseArgValue("7"); v != int64(7) {
		t.Errorf("parseArgValue(7) = %v (%T)", v, v)
	}
	if v := parseArgValue("0x2002"); v != int64(0x2002) {
		t.Errorf("parseArgValue(0x2002) = %v (%T)", v, v)
	}
	if v := parseArgValue("2.5"); v != 2.5 {
		t.Errorf("parseArgValue(2.5) = %v (%T)", v, v)
	}
	if v := parseArgValue("ENABLED"); v != "ENABLED" {
		t.Errorf("parseArgValue(ENABLED) = %v (%T)", v, v)
	}
}
