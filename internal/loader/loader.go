// Package loader parses the memory-image text format of §6: whitespace
// separated `@HHHHHHHH` address-set tokens and `HH` byte tokens. Grounded
// on original_source/memory.hpp's Memory() constructor, which reads the
// same format token-by-token from cin; restated here as a collaborator
// over an io.Reader using bufio.Scanner with bufio.ScanWords, the
// standard idiom this corpus's CLI-adjacent tools (see cmd/) use for
// whitespace-delimited input.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/caidj0/RISC-V-Simulator/internal/mem"
)

// Load reads a memory image from r into store, returning an error if any
// token is malformed. Unaddressed bytes read as 0; Load only ever calls
// WriteByte for bytes the image actually specifies.
func Load(r io.Reader, store *mem.Store) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var addr uint32
	for scanner.Scan() {
		tok := scanner.Text()
		if tok == "" {
			continue
		}
		if tok[0] == '@' {
			v, err := strconv.ParseUint(tok[1:], 16, 32)
			if err != nil {
				return fmt.Errorf("loader: bad address token %q: %w", tok, err)
			}
			addr = uint32(v)
			continue
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return fmt.Errorf("loader: bad byte token %q: %w", tok, err)
		}
		store.WriteByte(addr, byte(v))
		addr++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("loader: reading memory image: %w", err)
	}
	return nil
}
