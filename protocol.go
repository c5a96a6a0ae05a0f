//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lpsi

import (
	"fmt"
	"io"
	"time"

	"github.com/markkurossi/lpsi/oosot"
	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/lpsi/pir"
	"github.com/markkurossi/mpc/env"
	"github.com/markkurossi/tabulate"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// Options configures a protocol run. The zero value is usable: it
// selects hashlayout.DefaultNH inner rows, ItemSize-byte PIR rows, no
// BFV plaintext compression, and the OT extension without the
// malicious consistency check (set Malicious to enable it).
type Options struct {
	NH        int
	ItemSize  int
	Compress  bool
	Malicious bool
}

func (o Options) withDefaults() Options {
	if o.NH == 0 {
		o.NH = 3
	}
	if o.ItemSize == 0 {
		o.ItemSize = ItemSize
	}
	return o
}

// phase names, in protocol order: Initialize, OPRF, Hash, PIR, OT,
// Decrypt. Initialize has no wire traffic and is not separately timed.
const (
	phaseOPRF    = "OPRF"
	phaseHash    = "Hash"
	phasePIR     = "PIR"
	phaseOT      = "OT"
	phaseDecrypt = "Decrypt"
)

// Report records how long each protocol phase took, in the order the
// phases ran, so timing never mixes online cryptographic work with
// the setup phases that precede it.
type Report struct {
	order []string
	times map[string]time.Duration

	// IntersectionSize is the only signal RunSender's caller learns
	// about the protocol's outcome:
	// the count of valid Receiver OT choices, set after phase 5
	// completes. Zero on the Receiver side's Report, which instead
	// reports the outcome through RunReceiver's returned records.
	IntersectionSize int
}

func newReport() *Report {
	return &Report{times: make(map[string]time.Duration)}
}

func (r *Report) record(phase string, d time.Duration) {
	if _, ok := r.times[phase]; !ok {
		r.order = append(r.order, phase)
	}
	r.times[phase] = d
}

// Print renders the phase timing breakdown as a table.
func (r *Report) Print(w io.Writer) {
	tab := tabulate.New(tabulate.Github)
	tab.Header("Phase")
	tab.Header("Duration").SetAlign(tabulate.MR)

	var total time.Duration
	for _, phase := range r.order {
		row := tab.Row()
		row.Column(phase)
		row.Column(r.times[phase].String())
		total += r.times[phase]
	}
	row := tab.Row()
	row.Column("Total")
	row.Column(total.String())

	tab.Print(w)
}

func timed(r *Report, phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.record(phase, time.Since(start))
	return err
}

// nextPow2 returns the smallest power of two >= n (at least 1).
func nextPow2(n int) int {
	v := 1
	for v < n {
		v *= 2
	}
	return v
}

// RunSender drives the Sender side of the full six-phase protocol over
// conn: OPRF, hash-layout publication, PIR database hosting, OT key
// delivery, and the final intersection-size readout. It never learns
// anything about the Receiver's query set beyond the intersection's
// size.
func RunSender(conn *p2p.Conn, cfg *env.Config, records []Record, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	report := newReport()

	sender := NewSender(cfg, records, opts.ItemSize)
	if err := sender.ComputeXPrime(); err != nil {
		return report, err
	}

	err := timed(report, phaseOPRF, func() error {
		b, err := conn.ReceiveData()
		if err != nil {
			return fmt.Errorf("lpsi: receive B: %w", err)
		}
		bPoints, err := unpackPoints(b)
		if err != nil {
			return err
		}
		c, err := sender.ProcessOPRFStep2(bPoints)
		if err != nil {
			return err
		}
		if err := conn.SendData(packPoints(c)); err != nil {
			return fmt.Errorf("lpsi: send C: %w", err)
		}
		return conn.Flush()
	})
	if err != nil {
		return report, err
	}

	var numMainBuckets int
	err = timed(report, phaseHash, func() error {
		n, err := conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("lpsi: receive numMainBuckets: %w", err)
		}
		numMainBuckets = n
		if err := sender.BuildHashBuckets(numMainBuckets); err != nil {
			return err
		}
		if err := sender.BuildSubBuckets(opts.NH); err != nil {
			return err
		}
		if err := conn.SendUint32(sender.NH()); err != nil {
			return err
		}
		if err := conn.SendUint32(sender.SubCapacity()); err != nil {
			return err
		}
		return conn.Flush()
	})
	if err != nil {
		return report, err
	}

	err = timed(report, phasePIR, func() error {
		if err := sender.PreparePIRDatabase(); err != nil {
			return err
		}
		rows := sender.PIRDatabaseBytes()

		numVirtualRows := sender.NumMainBuckets() * sender.NH()
		params, err := pir.NewParams(pir.Direct, len(rows), sender.ItemSize(), numVirtualRows, opts.Compress)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}
		params.SetColSize(sender.SubCapacity())

		server, err := pir.NewServer(params, rows)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}

		evkData, err := conn.ReceiveData()
		if err != nil {
			return fmt.Errorf("lpsi: receive evaluation key: %w", err)
		}
		rlk := new(rlwe.RelinearizationKey)
		if err := rlk.UnmarshalBinary(evkData); err != nil {
			return fmt.Errorf("lpsi: unmarshal evaluation key: %w", err)
		}
		evk := rlwe.NewMemEvaluationKeySet(rlk)

		numQuery, err := conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("lpsi: receive query count: %w", err)
		}
		query := make([]*rlwe.Ciphertext, numQuery)
		for i := range query {
			data, err := conn.ReceiveData()
			if err != nil {
				return fmt.Errorf("lpsi: receive query ciphertext %d: %w", i, err)
			}
			ct := new(rlwe.Ciphertext)
			if err := ct.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("lpsi: unmarshal query ciphertext %d: %w", i, err)
			}
			query[i] = ct
		}

		response, err := server.Answer(evk, query)
		if err != nil {
			return wrapErr(ErrBfvModulusOverflow, err)
		}

		if err := conn.SendUint32(len(response)); err != nil {
			return err
		}
		for i, ct := range response {
			data, err := ct.MarshalBinary()
			if err != nil {
				return fmt.Errorf("lpsi: marshal response ciphertext %d: %w", i, err)
			}
			if err := conn.SendData(data); err != nil {
				return fmt.Errorf("lpsi: send response ciphertext %d: %w", i, err)
			}
		}
		return conn.Flush()
	})
	if err != nil {
		return report, err
	}

	err = timed(report, phaseOT, func() error {
		t, err := conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("lpsi: receive OT instance count: %w", err)
		}

		basis := sender.PrepareOTInputs(t)
		if t == 0 {
			// The Receiver found no candidate hits, so the OT primitive
			// is never invoked.
			return nil
		}

		n := nextPow2(sender.NumMainBuckets())
		params, err := oosot.NewParams(t, n, opts.Malicious)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}
		padded := make([][]byte, n)
		for i := range padded {
			if i < len(basis) {
				padded[i] = padTo32(basis[i])
			} else {
				padded[i] = make([]byte, oosot.DataSize)
			}
		}
		if err := oosot.NewSender(conn, cfg).Run(params, padded); err != nil {
			if _, ok := err.(*oosot.MaliciousOtRejectError); ok {
				return wrapErr(ErrMaliciousOtReject, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	report.IntersectionSize = sender.IntersectionSize()

	return report, nil
}

// RunReceiver drives the Receiver side of the full six-phase protocol
// over conn, returning the recovered (x,v) records for every query
// value present in the Sender's set.
func RunReceiver(conn *p2p.Conn, cfg *env.Config, queries [][]byte, opts Options) ([]Record, *Report, error) {
	opts = opts.withDefaults()
	report := newReport()

	receiver := NewReceiver(cfg, queries)

	err := timed(report, phaseOPRF, func() error {
		b, err := receiver.ComputeOPRFStep1()
		if err != nil {
			return err
		}
		if err := conn.SendData(packPoints(b)); err != nil {
			return fmt.Errorf("lpsi: send B: %w", err)
		}
		if err := conn.Flush(); err != nil {
			return err
		}
		c, err := conn.ReceiveData()
		if err != nil {
			return fmt.Errorf("lpsi: receive C: %w", err)
		}
		cPoints, err := unpackPoints(c)
		if err != nil {
			return err
		}
		return receiver.ProcessOPRFStep3(cPoints)
	})
	if err != nil {
		return nil, report, err
	}

	var nh, capacity int
	err = timed(report, phaseHash, func() error {
		numMainBuckets, err := receiver.BuildHashBuckets()
		if err != nil {
			return err
		}
		if err := conn.SendUint32(numMainBuckets); err != nil {
			return err
		}
		if err := conn.Flush(); err != nil {
			return err
		}
		nh, err = conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("lpsi: receive nh: %w", err)
		}
		capacity, err = conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("lpsi: receive sub-bucket capacity: %w", err)
		}
		_, err = receiver.GeneratePIRQueryIndices(nh, capacity)
		return err
	})
	if err != nil {
		return nil, report, err
	}

	err = timed(report, phasePIR, func() error {
		numMainBuckets := receiver.outer.NumBuckets
		numPayloads := numMainBuckets * nh * capacity
		numVirtualRows := numMainBuckets * nh

		params, err := pir.NewParams(pir.Direct, numPayloads, opts.ItemSize, numVirtualRows, opts.Compress)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}
		params.SetColSize(capacity)

		client, err := pir.NewClient(params)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}

		evkData, err := client.MarshalRelinearizationKey()
		if err != nil {
			return err
		}
		if err := conn.SendData(evkData); err != nil {
			return err
		}

		query, err := client.BuildQuery(receiver.QueryIndices(), nil)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}
		if err := conn.SendUint32(len(query)); err != nil {
			return err
		}
		for i, ct := range query {
			data, err := ct.MarshalBinary()
			if err != nil {
				return fmt.Errorf("lpsi: marshal query ciphertext %d: %w", i, err)
			}
			if err := conn.SendData(data); err != nil {
				return fmt.Errorf("lpsi: send query ciphertext %d: %w", i, err)
			}
		}
		if err := conn.Flush(); err != nil {
			return err
		}

		numResp, err := conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("lpsi: receive response count: %w", err)
		}
		response := make([]*rlwe.Ciphertext, numResp)
		for i := range response {
			data, err := conn.ReceiveData()
			if err != nil {
				return fmt.Errorf("lpsi: receive response ciphertext %d: %w", i, err)
			}
			ct := new(rlwe.Ciphertext)
			if err := ct.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("lpsi: unmarshal response ciphertext %d: %w", i, err)
			}
			response[i] = ct
		}

		rows := make([][]byte, len(receiver.QueryIndices()))
		for i, row := range receiver.QueryIndices() {
			data, err := client.Decode(response, row, nil)
			if err != nil {
				return wrapErr(ErrBfvNoiseExhausted, err)
			}
			rows[i] = data
		}
		return receiver.ProcessPIRResults(rows)
	})
	if err != nil {
		return nil, report, err
	}

	var keys [][]byte
	err = timed(report, phaseOT, func() error {
		choices := receiver.OTChoices()
		if err := conn.SendUint32(len(choices)); err != nil {
			return err
		}
		if err := conn.Flush(); err != nil {
			return err
		}
		if len(choices) == 0 {
			// No candidate hits: skip the OT phase entirely.
			return nil
		}

		n := nextPow2(receiver.outer.NumBuckets)
		params, err := oosot.NewParams(len(choices), n, opts.Malicious)
		if err != nil {
			return wrapErr(ErrInputShape, err)
		}
		keys, err = oosot.NewReceiver(conn, cfg).Run(params, choices)
		if err != nil {
			if _, ok := err.(*oosot.MaliciousOtRejectError); ok {
				return wrapErr(ErrMaliciousOtReject, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, report, err
	}

	var records []Record
	err = timed(report, phaseDecrypt, func() error {
		var err error
		records, err = receiver.DecryptIntersection(keys)
		return err
	})
	if err != nil {
		return nil, report, err
	}

	return records, report, nil
}

// packPoints length-delimits a slice of fixed-size (curveops.PointSize)
// point encodings into one framed blob, so the whole OPRF share array
// crosses the wire as a single p2p message.
func packPoints(points [][]byte) []byte {
	out := make([]byte, 0, 4+len(points)*33)
	out = appendUint32(out, uint32(len(points)))
	for _, p := range points {
		out = append(out, p...)
	}
	return out
}

func unpackPoints(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, wrapErr(ErrInputShape, fmt.Errorf("point batch too short: %d bytes", len(data)))
	}
	n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	data = data[4:]
	if len(data) != n*33 {
		return nil, wrapErr(ErrInputShape,
			fmt.Errorf("point batch has %d bytes, want %d for %d points", len(data), n*33, n))
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = data[i*33 : (i+1)*33]
	}
	return out, nil
}

func appendUint32(out []byte, v uint32) []byte {
	return append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func padTo32(b []byte) []byte {
	if len(b) >= oosot.DataSize {
		return b[:oosot.DataSize]
	}
	out := make([]byte, oosot.DataSize)
	copy(out, b)
	return out
}

