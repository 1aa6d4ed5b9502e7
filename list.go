package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"vnetns/process"
)

// ListLocks prints every lock of the registry with the liveness and name of
// its holding process.
func ListLocks(out io.Writer) error {
	locks, err := env.registry.Locks()
	if err != nil {
		return err
	}
	snapshot, err := process.TakeSnapshot()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 12, 1, 3, ' ', 0)
	fmt.Fprint(w, "NAMESPACE\tPID\tALIVE\tPROCESS\tSUBNET\tCREATED\n")
	for i := range locks {
		info := locks[i].Info()
		name := "-"
		alive := snapshot.Alive(info.PID)
		if alive {
			name = process.Executable(info.PID)
		}
		subnet, created := orDash(info.Subnet), orDash(info.CreatedTime)
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\t%s\n",
			info.Namespace,
			info.PID,
			alive,
			name,
			subnet,
			created)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
