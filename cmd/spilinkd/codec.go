package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/spilink/internal/protocol/frame"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <payload-hex>",
		Short: "Print the wire bytes for a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseHex(args[0])
			if err != nil {
				return err
			}
			f, err := frame.Encode(payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "offset=%d length=%d wire_len=%d\n", f.Header.Offset, f.Header.Length, f.WireLen())
			fmt.Fprintln(out, hex.EncodeToString(f.Bytes()))
			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <wire-hex>",
		Short: "Validate wire bytes and print the payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseHex(args[0])
			if err != nil {
				return err
			}
			f, err := frame.Decode(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "offset=%d length=%d\n", f.Header.Offset, f.Header.Length)
			fmt.Fprintln(out, hex.EncodeToString(f.Payload))
			return nil
		},
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	return b, nil
}
