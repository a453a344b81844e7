// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileCreateReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "gpiodbusd.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Create(1234))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	require.NoError(t, pf.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFileLiveOwnerBlocksCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpiodbusd.pid")

	first := NewPIDFile(path)
	// Use our own live PID so the file is not considered stale.
	require.NoError(t, first.Create(os.Getpid()))
	defer first.Remove()

	second := NewPIDFile(path)
	err := second.Create(os.Getpid())
	assert.Error(t, err)
}

func TestPIDFileStaleIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpiodbusd.pid")

	// A PID that cannot belong to a live process.
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))

	pf := NewPIDFile(path)
	require.NoError(t, pf.Create(os.Getpid()))
	defer pf.Remove()

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFileGarbageContentIsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpiodbusd.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid\n"), 0o644))

	pf := NewPIDFile(path)
	_, err := pf.Read()
	assert.ErrorIs(t, err, ErrInvalidPID)

	require.NoError(t, pf.Create(os.Getpid()))
	defer pf.Remove()
}
