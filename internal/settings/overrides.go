package settings

// Overrides returns the stored override mapping.
func (s *Store) Overrides() (Overrides, error) {
	st, err := s.Read()
	if err != nil {
		return nil, err
	}
	return st.Overrides, nil
}

// SetOverride marks key completed, or deletes its entry when completed is
// false, persists the change and returns the full updated mapping.
func (s *Store) SetOverride(key string, completed bool) (Overrides, error) {
	st, err := s.Update(func(st *Settings) error {
		if completed {
			st.Overrides[key] = Override{Completed: true, UpdatedAt: s.now().UTC()}
		} else {
			delete(st.Overrides, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Overrides, nil
}
