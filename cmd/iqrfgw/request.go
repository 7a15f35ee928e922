package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"github.com/c360/iqrfgw/batch"
	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/dpa"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
)

// buildJob turns the request flags into a job for variant v.
func buildJob(cli *CLIConfig, v message.Variant) (batch.Job, error) {
	job := batch.Job{Options: requestOptions(cli)}

	if cli.RData != "" {
		frame, err := dpa.ParseFrame(cli.RData)
		if err != nil {
			return batch.Job{}, fmt.Errorf("parse -rdata: %w", err)
		}
		if cli.Hdp {
			job.Command, job.Payload, err = dpa.RawHdpRequest(v, frame)
			if err != nil {
				return batch.Job{}, err
			}
		} else {
			job.Command, job.Payload = dpa.RawRequest(v, frame)
		}
		job.Label = strconv.Itoa(int(frame.NAdr))
		return job, nil
	}

	payload := map[string]any{}
	if cli.Param != "" {
		if err := json.Unmarshal([]byte(cli.Param), &payload); err != nil {
			return batch.Job{}, fmt.Errorf("parse -param: %w", err)
		}
	}
	if cli.NAdr >= 0 {
		payload["nAdr"] = cli.NAdr
		job.Label = strconv.Itoa(cli.NAdr)
	}
	job.Command = cli.MType
	job.Payload = payload
	return job, nil
}

func requestOptions(cli *CLIConfig) []correlator.RequestOption {
	var opts []correlator.RequestOption
	if cli.Verbose {
		opts = append(opts, correlator.Verbose(true))
	}
	if cli.Timeout > 0 {
		opts = append(opts, correlator.RequestTimeout(cli.Timeout))
	}
	return opts
}

// buildJobs expands the flags into every job of a run.
func buildJobs(cli *CLIConfig, v message.Variant) ([]batch.Job, error) {
	job, err := buildJob(cli, v)
	if err != nil {
		return nil, err
	}
	if cli.Nodes == "" {
		return batch.Repeat(job, cli.Count), nil
	}

	nodes, err := parseNodes(cli.Nodes)
	if err != nil {
		return nil, err
	}
	return batch.ForNodes(nodes, cli.Count, func(nadr uint16) batch.Job {
		j := job
		j.Label = ""
		j.Payload = maps.Clone(job.Payload)
		j.Payload["nAdr"] = int(nadr)
		return j
	}), nil
}

type resultOutput struct {
	Label         string         `json:"label,omitempty"`
	Command       string         `json:"command"`
	CorrelationID string         `json:"correlation_id"`
	Outcome       string         `json:"outcome"`
	Status        string         `json:"status"`
	Elapsed       string         `json:"elapsed"`
	Attempts      int            `json:"attempts"`
	Discarded     int            `json:"discarded,omitempty"`
	DecodeErrors  int            `json:"decode_errors,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorClass    string         `json:"error_class,omitempty"`
	Response      map[string]any `json:"response,omitempty"`
	DPA           *dpaOutput     `json:"dpa,omitempty"`

	Transactions []transactionOutput `json:"transactions,omitempty"`
}

type transactionOutput struct {
	dpa.Transaction
	ConfirmationDelay string `json:"confirmation_delay,omitempty"`
	ResponseDelay     string `json:"response_delay,omitempty"`
}

type dpaOutput struct {
	Packet string `json:"packet"`
	NAdr   uint16 `json:"nadr"`
	RCode  uint8  `json:"rcode"`
	PData  string `json:"pdata,omitempty"`
}

func newResultOutput(label string, res correlator.Result, attempts int) resultOutput {
	out := resultOutput{
		Label:         label,
		Command:       res.Command,
		CorrelationID: res.CorrelationID,
		Outcome:       res.Outcome.String(),
		Status:        res.StatusString(),
		Elapsed:       res.Elapsed.String(),
		Attempts:      attempts,
		Discarded:     res.Discarded,
		DecodeErrors:  res.DecodeErrors,
	}
	if err := res.AsError(); err != nil {
		out.Error = err.Error()
		out.ErrorClass = errors.Classify(err).String()
	}
	if res.Outcome != correlator.Success {
		return out
	}

	out.Response = res.Envelope.Fields
	if r, err := dpa.ResponseFrom(res.Envelope); err == nil {
		out.DPA = &dpaOutput{
			Packet: r.String(),
			NAdr:   r.NAdr,
			RCode:  r.RCode,
			PData:  dpa.FormatBytes(r.PData),
		}
	}
	for _, tx := range dpa.TransactionsFrom(res.Envelope) {
		to := transactionOutput{Transaction: tx}
		if d := tx.ConfirmationDelay(); d != 0 {
			to.ConfirmationDelay = d.String()
		}
		if d := tx.ResponseDelay(); d != 0 {
			to.ResponseDelay = d.String()
		}
		out.Transactions = append(out.Transactions, to)
	}
	return out
}

type batchOutput struct {
	Stats   batch.Stats    `json:"stats"`
	Results []resultOutput `json:"results,omitempty"`
}

func newBatchOutput(report batch.Report) batchOutput {
	out := batchOutput{Stats: report.Stats, Results: make([]resultOutput, 0, len(report.Items))}
	for _, it := range report.Items {
		out.Results = append(out.Results, newResultOutput(it.Job.Label, it.Result, it.Attempts))
	}
	return out
}
