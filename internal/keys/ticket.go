package keys

import (
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	ticketKeyOffset = 0x180
	rightsIDLength  = 16
)

// RightsIDFromFilename decodes the hex stem of a ticket filename such as
// "0100abcd12345000000000000000000a.tik".
func RightsIDFromFilename(name string) ([]byte, bool) {
	stem := strings.TrimSuffix(path.Base(name), path.Ext(name))
	raw, err := hex.DecodeString(stem)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// ReadTicketKey reads the title key field of a ticket.
func ReadTicketKey(r io.ReaderAt) ([16]byte, error) {
	var key [16]byte
	if _, err := r.ReadAt(key[:], ticketKeyOffset); err != nil {
		return key, fmt.Errorf("read ticket key: %w", err)
	}
	return key, nil
}

// RegisterTicket registers the ticket's title key under rightsID. Rights IDs
// of any length other than 16 bytes are ignored and report false.
func (s *Store) RegisterTicket(rightsID []byte, ticket io.ReaderAt) (bool, error) {
	if len(rightsID) != rightsIDLength {
		return false, nil
	}
	key, err := ReadTicketKey(ticket)
	if err != nil {
		return false, err
	}
	s.RegisterKey(rightsID, key)
	return true, nil
}
