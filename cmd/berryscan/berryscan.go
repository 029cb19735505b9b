// Copyright (c) 2017-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	v1 "github.com/decred/berryscan/api/v1"
	"github.com/decred/berryscan/canvas"
	"github.com/decred/berryscan/render"
)

var (
	host      = flag.String("h", "", "berryscand status API host")
	printJSON = flag.Bool("json", false, "Print JSON response from server")
	pngFile   = flag.String("png", "", "Render the board to this PNG file")
	scale     = flag.Int("scale", render.DefaultScale, "Render scale")
	verbose   = flag.Bool("v", false, "Verbose")
)

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// getError returns the error that is embedded in a JSON reply.
func getError(r io.Reader) (string, error) {
	var e v1.ErrorReply
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&e); err != nil {
		return "", err
	}
	if e.Error == "" {
		return "", fmt.Errorf("no error response")
	}
	return e.Error, nil
}

// get fetches route and decodes the reply into reply.  With -json the raw
// reply is printed instead and false is returned.
func get(route string, reply interface{}) (bool, error) {
	c := &http.Client{Timeout: 30 * time.Second}
	r, err := c.Get(*host + route)
	if err != nil {
		return false, err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		e, err := getError(r.Body)
		if err != nil {
			return false, fmt.Errorf("%v", r.Status)
		}
		return false, fmt.Errorf("%v: %v", r.Status, e)
	}

	if *printJSON {
		io.Copy(os.Stdout, r.Body)
		fmt.Printf("\n")
		return false, nil
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(reply); err != nil {
		return false, fmt.Errorf("could not decode reply: %v", err)
	}
	return true, nil
}

// boardFromReply converts a board reply back into a board.
func boardFromReply(br *v1.BoardReply) (*canvas.Board, error) {
	if br.Width != canvas.Width || br.Height != canvas.Height ||
		len(br.Colors) != canvas.Height || len(br.Owners) != canvas.Height {
		return nil, fmt.Errorf("unexpected board dimensions %vx%v",
			br.Width, br.Height)
	}
	b := canvas.NewBoard(br.BlockHeight)
	for y := 0; y < canvas.Height; y++ {
		if len(br.Colors[y]) != canvas.Width ||
			len(br.Owners[y]) != canvas.Width {
			return nil, fmt.Errorf("unexpected length of row %v", y)
		}
		for x := 0; x < canvas.Width; x++ {
			b.Set(x, y, canvas.Pixel{
				Color:   br.Colors[y][x],
				OwnerID: br.Owners[y][x],
			})
		}
	}
	return b, nil
}

func status() error {
	var sr v1.StatusReply
	ok, err := get(v1.StatusRoute, &sr)
	if err != nil || !ok {
		return err
	}

	state := "idle"
	if sr.Running {
		state = "scanning"
	}
	fmt.Printf("Version            : %v\n", sr.Version)
	fmt.Printf("State              : %v\n", state)
	fmt.Printf("Range              : %v - %v\n", sr.GenesisHeight,
		sr.FinalHeight)
	fmt.Printf("Last scanned height: %v\n", sr.LastScannedHeight)
	fmt.Printf("Boards             : %v\n", sr.Boards)
	fmt.Printf("Last change height : %v\n", sr.LastChangeHeight)
	if *verbose {
		fmt.Printf("Cursor             : %v\n", sr.Cursor)
		fmt.Printf("Jump probes        : %v\n", sr.JumpProbes)
		fmt.Printf("Jump skips         : %v\n", sr.JumpSkips)
		fmt.Printf("Linear fetches     : %v\n", sr.LinearFetches)
		fmt.Printf("Unavailable        : %v\n", sr.Unavailable)
	}
	return nil
}

func board() error {
	var br v1.BoardReply
	ok, err := get(v1.BoardRoute, &br)
	if err != nil || !ok {
		return err
	}
	b, err := boardFromReply(&br)
	if err != nil {
		return err
	}

	painted := canvas.Diff(canvas.NewBoard(0), b)
	fmt.Printf("Board %v at height %v: %v of %v pixels painted\n",
		br.Index, b.BlockHeight, painted, canvas.TotalPixels)

	if *pngFile == "" {
		return nil
	}
	if err := render.WriteFile(*pngFile, b, *scale); err != nil {
		return err
	}
	if *verbose {
		fmt.Printf("Rendered %v\n", *pngFile)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: berryscan [flags] [status|board]\n")
	flag.PrintDefaults()
}

func _main() error {
	flag.Usage = usage
	flag.Parse()

	loadedCfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	if *host == "" {
		*host = loadedCfg.Host
	}
	*host = normalizeAddress(*host, v1.DefaultListenPort)

	u, err := url.Parse("http://" + *host)
	if err != nil {
		return err
	}
	*host = u.String()

	cmd := "status"
	switch flag.NArg() {
	case 0:
	case 1:
		cmd = flag.Arg(0)
	default:
		usage()
		return fmt.Errorf("too many arguments")
	}

	switch cmd {
	case "status":
		return status()
	case "board":
		return board()
	}
	return fmt.Errorf("unknown command: %v", cmd)
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
