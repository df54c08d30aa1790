/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package executil

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	stdout, stderr []byte
	err            error
	block          bool

	gotName  string
	gotArgs  []string
	gotStdin string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	f.gotName, f.gotArgs = name, args
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		f.gotStdin = string(b)
	}
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.stdout, f.stderr, f.err
}

func TestExecutorExecute(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("pcm")}
	e := NewExecutorWithRunner("/usr/bin/piper", time.Second, runner)

	out, err := e.Execute(context.Background(), []string{"--output-raw"}, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "pcm", string(out))
	assert.Equal(t, "/usr/bin/piper", runner.gotName)
	assert.Equal(t, []string{"--output-raw"}, runner.gotArgs)
	assert.Equal(t, "hello", runner.gotStdin)
	assert.Equal(t, "/usr/bin/piper", e.Binary())
}

func TestExecutorFoldsStderr(t *testing.T) {
	runner := &fakeRunner{stderr: []byte("model missing\n"), err: errors.New("exit status 1")}
	e := NewExecutorWithRunner("piper", time.Second, runner)

	_, err := e.Execute(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model missing")
}

func TestExecutorTimeout(t *testing.T) {
	e := NewExecutorWithRunner("rpicam-still", 20*time.Millisecond, &fakeRunner{block: true})

	_, err := e.Execute(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestNewExecutorMissingBinary(t *testing.T) {
	_, err := NewExecutor("definitely-not-a-real-binary-name", time.Second)
	assert.Error(t, err)
}
