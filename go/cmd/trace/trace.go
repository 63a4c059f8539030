package trace

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/cmd"
	"github.com/lucos-os/lucos/go/models"
	"github.com/lucos-os/lucos/go/models/trace"
)

type jsonFrame struct {
	Time int64    `json:"time"`
	Pid  int32    `json:"pid"`
	Name string   `json:"name"`
	Args []uint64 `json:"args"`
	Ret  int32    `json:"ret"`
}

// Dump writes every frame of tf to w, one per line.
func Dump(tf *trace.TraceReader, w io.Writer, asJson bool) error {
	enc := json.NewEncoder(w)
	for {
		frame, err := tf.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace frame")
		}
		if asJson {
			name, ok := models.SyscallNames[int(frame.Num)]
			if !ok {
				name = fmt.Sprintf("syscall_%d", frame.Num)
			}
			jf := jsonFrame{frame.Time, frame.Pid, name, frame.Args[:], int32(frame.Ret)}
			if err := enc.Encode(&jf); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(w, frame.String())
		}
	}
}

func Main(args []string) {
	fs := flag.NewFlagSet("args", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output trace as line-delimited JSON objects")
	fs.Usage = func() {
		fmt.Printf("Usage: %s [options] <tracefile>\n", args[0])
		fs.PrintDefaults()
	}
	fs.Parse(args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	args = fs.Args()

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open: %s %v\n", args[0], err)
		os.Exit(1)
	}
	tf, err := trace.NewReader(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening trace file: %v\n", err)
		os.Exit(1)
	}
	defer tf.Close()
	if !*jsonFlag {
		fmt.Printf("# boot %s, page size %d\n", tf.Header.BootID, tf.Header.PageSize)
	}
	if err := Dump(tf, os.Stdout, *jsonFlag); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func init() { cmd.Register("trace", "print a saved syscall trace file", Main) }
