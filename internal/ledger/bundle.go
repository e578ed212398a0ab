// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package ledger

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/paxdriver/KriSYS/internal/model"
)

// WriteBundle writes the chain as zstd-compressed JSON, the format carried
// between disconnected stations on removable media.
func WriteBundle(w io.Writer, chain []model.Block) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(chain); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	return enc.Close()
}

// ReadBundle decodes a bundle written by WriteBundle. The chain is not
// validated; call ValidateChain on the result.
func ReadBundle(r io.Reader) ([]model.Block, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	var chain []model.Block
	if err := json.NewDecoder(dec).Decode(&chain); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return chain, nil
}
