package block

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// MarshalBinary encodes a Block to its fixed-size wire form, used by the
// message queue (internal/mq) and by the shared-memory regions when they
// need to stage a block before copying it into a mapped slot.
func (b Block) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(Size)
	fields := []any{
		b.ID, b.Target, b.Solution, b.Winner,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, errors.Wrap(err, "block: marshal header")
		}
	}
	for _, c := range b.Coins {
		if err := binary.Write(buf, binary.LittleEndian, c); err != nil {
			return nil, errors.Wrap(err, "block: marshal coins")
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, b.TotalVotes); err != nil {
		return nil, errors.Wrap(err, "block: marshal total votes")
	}
	if err := binary.Write(buf, binary.LittleEndian, b.Approvals); err != nil {
		return nil, errors.Wrap(err, "block: marshal approvals")
	}
	var validWord int64
	if b.Valid {
		validWord = 1
	}
	if err := binary.Write(buf, binary.LittleEndian, validWord); err != nil {
		return nil, errors.Wrap(err, "block: marshal valid flag")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Block from its fixed-size wire form.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return errors.Errorf("block: short buffer: got %d want %d", len(data), Size)
	}
	r := bytes.NewReader(data)
	for _, f := range []*int64{&b.ID, &b.Target, &b.Solution, &b.Winner} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "block: unmarshal header")
		}
	}
	for i := range b.Coins {
		if err := binary.Read(r, binary.LittleEndian, &b.Coins[i]); err != nil {
			return errors.Wrap(err, "block: unmarshal coins")
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &b.TotalVotes); err != nil {
		return errors.Wrap(err, "block: unmarshal total votes")
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Approvals); err != nil {
		return errors.Wrap(err, "block: unmarshal approvals")
	}
	var validWord int64
	if err := binary.Read(r, binary.LittleEndian, &validWord); err != nil {
		return errors.Wrap(err, "block: unmarshal valid flag")
	}
	b.Valid = validWord != 0
	return nil
}
