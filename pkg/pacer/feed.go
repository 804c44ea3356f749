package pacer

import (
	"context"
	"errors"
	"io"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

const feedBufSize = 4096

// Feed reads a raw text body into p, one delta per read, and closes or fails
// p when the body ends. A read error other than io.EOF fails the pacer with
// an *llm.UpstreamError and is returned. Feed stops early without error once
// the pacer no longer accepts deltas.
func Feed(ctx context.Context, p *Pacer, r io.Reader) error {
	buf := make([]byte, feedBufSize)
	var seq uint64

	for {
		if err := ctx.Err(); err != nil {
			p.Stop()
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			seq++
			if perr := p.Push(llm.Delta{Seq: seq, Text: string(buf[:n])}); perr != nil {
				if errors.Is(perr, ErrClosed) {
					return nil
				}
				return perr
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.Close()
			return nil
		case ctx.Err() != nil:
			p.Stop()
			return ctx.Err()
		default:
			uerr := llm.NewUpstreamError("read", err)
			p.Fail(uerr)
			return uerr
		}
	}
}
