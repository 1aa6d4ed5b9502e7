package privilege

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FixOwnership hands the directory tree at dir back to the invoking user
// after privileged operations created files in it. Symbolic links are
// changed themselves, never their targets. A missing dir is left alone.
func FixOwnership(dir string, id *Identity) error {
	if id == nil {
		return errors.New("no identity to hand ownership to")
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		return os.Lchown(path, id.UID, id.GID)
	})
	if err != nil {
		return errors.Wrapf(err, "cannot hand %s over to %s:%s", dir, id.Name, id.Group)
	}
	log.WithFields(log.Fields{"dir": dir, "user": id.Name, "group": id.Group}).Debug("fixed ownership")
	return nil
}
