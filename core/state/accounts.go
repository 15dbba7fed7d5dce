package state

// AccountNonce returns the last authorization nonce consumed by addr. Fresh
// accounts report zero.
func (m *Manager) AccountNonce(addr [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(AccountNonceKey(addr[:]), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// SetAccountNonce records the last consumed authorization nonce of addr.
func (m *Manager) SetAccountNonce(addr [20]byte, nonce uint64) error {
	return m.KVPut(AccountNonceKey(addr[:]), nonce)
}
