package paths

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackupPathResolver(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 5, 3, 42*int(time.Millisecond), time.UTC)
	r := NewResolver("/srv/rebind").WithClock(func() time.Time { return at })

	b := r.Backup("", "Promotion", "0123456789abcdef")
	assert.Equal(t, "backups/20261019-080503-042-promotion-01234567", b.Resolve())

	b = r.Backup("state-backups", "custom", "n1")
	assert.Equal(t, "state-backups/20261019-080503-042-custom-n1", b.Resolve())
}

func TestResolver_Dirs(t *testing.T) {
	r := NewResolver("/srv/rebind")
	assert.Equal(t, filepath.Join("/srv/rebind", "persisted-state"), r.PersistenceDir())
	assert.Equal(t, filepath.Join("/srv/rebind", "persisted-state", "state"), r.ContainerDir("state"))
}

func TestResolver_ExpandsHome(t *testing.T) {
	orig := userHomeDir
	userHomeDir = func() (string, error) { return "/home/op", nil }
	defer func() { userHomeDir = orig }()

	assert.Equal(t, filepath.Join("/home/op", ".rebind"), NewResolver("").BaseDir())
	assert.Equal(t, "/home/op", NewResolver("~").BaseDir())
	assert.Equal(t, "/abs", NewResolver("/abs").BaseDir())
}
