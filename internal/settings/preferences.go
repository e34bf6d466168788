package settings

// Preferences returns the stored preferences.
func (s *Store) Preferences() (Preferences, error) {
	st, err := s.Read()
	if err != nil {
		return Preferences{}, err
	}
	return st.Preferences, nil
}

// SetPreferences merges u into the stored preferences and returns the
// result.
func (s *Store) SetPreferences(u PreferencesUpdate) (Preferences, error) {
	st, err := s.Update(func(st *Settings) error {
		st.Preferences = u.Apply(st.Preferences)
		return nil
	})
	if err != nil {
		return Preferences{}, err
	}
	return st.Preferences, nil
}

// ProgressPath returns the stored progress path, or "".
func (s *Store) ProgressPath() (string, error) {
	st, err := s.Read()
	if err != nil {
		return "", err
	}
	return st.ProgressPath, nil
}

// SetProgressPath stores path; a blank path clears it.
func (s *Store) SetProgressPath(path string) (string, error) {
	st, err := s.Update(func(st *Settings) error {
		st.ProgressPath = path
		return nil
	})
	if err != nil {
		return "", err
	}
	return st.ProgressPath, nil
}
