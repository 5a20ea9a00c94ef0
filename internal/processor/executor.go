package processor

import (
	"archive/zip"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Invocation is one resolved step, ready to run.
type Invocation struct {
	// Step is the program's descriptor, for messages.
	Step      string
	Program   string
	Classpath []string
	Args      []string
	Dir       string
}

// Executor runs a program to completion. A non-nil error fails the step.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) error
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ErrNoMainClass is returned for jars whose manifest has no Main-Class.
var ErrNoMainClass = errors.New("jar does not have a main class")

// JavaExecutor runs each step in its own JVM, so one step's classpath never
// leaks into another's.
type JavaExecutor struct {
	// Java is the java binary; empty means FindJava.
	Java    string
	JVMArgs []string
	Stdout  io.Writer
	Stderr  io.Writer
}

func (j *JavaExecutor) Execute(ctx context.Context, inv Invocation) error {
	mainClass, err := MainClass(inv.Program)
	if err != nil {
		return err
	}

	java := j.Java
	if java == "" {
		if java, err = FindJava(); err != nil {
			return err
		}
	}

	cp := append([]string{inv.Program}, inv.Classpath...)
	args := append([]string{}, j.JVMArgs...)
	args = append(args, "-cp", strings.Join(cp, string(os.PathListSeparator)), mainClass)
	args = append(args, inv.Args...)

	code, err := execCommand(ctx, java, args, inv.Dir, j.Stdout, j.Stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func execCommand(ctx context.Context, name string, args []string, dir string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// FindJava prefers $JAVA_HOME/bin/java, then java on PATH.
func FindJava() (string, error) {
	bin := "java"
	if runtime.GOOS == "windows" {
		bin = "java.exe"
	}
	if home := os.Getenv("JAVA_HOME"); home != "" {
		p := filepath.Join(home, "bin", bin)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	p, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("java not found (set JAVA_HOME or add java to PATH): %w", err)
	}
	return p, nil
}

// MainClass reads Main-Class from the jar manifest.
func MainClass(jar string) (string, error) {
	zr, err := zip.OpenReader(jar)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", jar, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(f.Name, "META-INF/MANIFEST.MF") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		main := manifestAttribute(rc, "Main-Class")
		if main == "" {
			break
		}
		return main, nil
	}
	return "", fmt.Errorf("%s: %w", jar, ErrNoMainClass)
}

// manifestAttribute returns a main-section attribute, joining continuation lines
// (lines starting with a single space).
func manifestAttribute(r io.Reader, name string) string {
	sc := bufio.NewScanner(r)
	var key string
	var value strings.Builder
	found := ""

	flush := func() {
		if key != "" && strings.EqualFold(key, name) && found == "" {
			found = strings.TrimSpace(value.String())
		}
		key = ""
		value.Reset()
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			// end of main section
			break
		}
		if strings.HasPrefix(line, " ") {
			value.WriteString(line[1:])
			continue
		}
		flush()
		if idx := strings.Index(line, ":"); idx > 0 {
			key = line[:idx]
			value.WriteString(strings.TrimPrefix(line[idx+1:], " "))
		}
	}
	flush()
	return found
}
