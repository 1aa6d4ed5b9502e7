package privilege

import (
	"os"
	"os/user"
	"strconv"

	"github.com/pkg/errors"
)

// Identity is the non-privileged user on whose behalf vnetns runs.
type Identity struct {
	Name  string
	UID   int
	GID   int
	Group string
	Home  string
	// Elevated is set when the identity was passed on by sudo.
	Elevated bool
}

// ResolveIdentity returns the invoking user: the user named by sudo if
// present, the owner of the current process otherwise.
func ResolveIdentity() (*Identity, error) {
	return resolveIdentity(os.LookupEnv)
}

func resolveIdentity(lookupEnv func(string) (string, bool)) (*Identity, error) {
	var (
		u   *user.User
		err error
	)
	name, elevated := lookupEnv(SudoUserEnv)
	if elevated && name != "" {
		u, err = user.Lookup(name)
	} else {
		elevated = false
		u, err = user.LookupId(strconv.Itoa(os.Getuid()))
	}
	if err != nil {
		return nil, errors.Wrap(err, "no valid username")
	}
	return identityOf(u, elevated)
}

func identityOf(u *user.User, elevated bool) (*Identity, error) {
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid uid of user %s", u.Username)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid gid of user %s", u.Username)
	}
	id := &Identity{
		Name:     u.Username,
		UID:      uid,
		GID:      gid,
		Group:    u.Username,
		Home:     u.HomeDir,
		Elevated: elevated,
	}
	if g, err := user.LookupGroupId(u.Gid); err == nil {
		id.Group = g.Name
	}
	return id, nil
}
