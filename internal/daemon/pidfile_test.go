package daemon

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memPIDFile(t *testing.T) (*PIDFile, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return newPIDFile(fs, "/data/docmcp.pid"), fs
}

func TestPIDFile_ClaimAndRead(t *testing.T) {
	pf, fs := memPIDFile(t)

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, pf.Claim(Record{PID: os.Getpid(), Transport: "gateway", Addr: "127.0.0.1:9000", StartedAt: started}))

	rec, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "gateway", rec.Transport)
	assert.Equal(t, "127.0.0.1:9000", rec.Addr)
	assert.True(t, started.Equal(rec.StartedAt))

	exists, err := afero.Exists(fs, "/data/docmcp.pid.tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temp file is renamed into place")

	running, ok := pf.Running()
	assert.True(t, ok)
	assert.Equal(t, rec, running)
}

func TestPIDFile_ClaimRefusesLiveOwner(t *testing.T) {
	pf, fs := memPIDFile(t)
	// The parent process is alive and is not us.
	require.NoError(t, afero.WriteFile(fs, pf.Path(), []byte(strconv.Itoa(os.Getppid())), 0644))

	err := pf.Claim(Record{PID: os.Getpid()})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getppid()))
}

func TestPIDFile_ClaimReplacesStaleOwner(t *testing.T) {
	pf, fs := memPIDFile(t)
	require.NoError(t, afero.WriteFile(fs, pf.Path(), []byte(`{"pid":2147483646,"transport":"stdio"}`), 0644))

	require.NoError(t, pf.Claim(Record{PID: os.Getpid(), Transport: "http"}))
	rec, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, "http", rec.Transport)
}

func TestPIDFile_Read(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantPID int
		wantErr bool
	}{
		{"bare pid", "4242", 4242, false},
		{"bare pid with newline", "4242\n", 4242, false},
		{"json record", `{"pid":77,"transport":"stdio"}`, 77, false},
		{"garbage", "not-a-pid", 0, true},
		{"json without pid", `{"transport":"stdio"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf, fs := memPIDFile(t)
			require.NoError(t, afero.WriteFile(fs, pf.Path(), []byte(tt.content), 0644))

			rec, err := pf.Read()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPID, rec.PID)
		})
	}

	t.Run("missing", func(t *testing.T) {
		pf, _ := memPIDFile(t)
		_, err := pf.Read()
		assert.True(t, os.IsNotExist(err))
		_, ok := pf.Running()
		assert.False(t, ok)
	})
}

func TestPIDFile_Release(t *testing.T) {
	pf, fs := memPIDFile(t)
	require.NoError(t, pf.Claim(Record{PID: os.Getpid()}))

	require.NoError(t, pf.Release(os.Getpid()+1))
	exists, _ := afero.Exists(fs, pf.Path())
	assert.True(t, exists, "another owner's file is left alone")

	require.NoError(t, pf.Release(os.Getpid()))
	exists, _ = afero.Exists(fs, pf.Path())
	assert.False(t, exists)

	assert.NoError(t, pf.Release(os.Getpid()), "releasing twice is fine")
	assert.NoError(t, pf.Remove())
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
	assert.False(t, ProcessAlive(-1))
}
