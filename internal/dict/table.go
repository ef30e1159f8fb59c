package dict

// table is an in-memory fixed-key backend shared by inline and texthash.
type table struct {
	values map[string]string
	fold   bool
}

func newTable(flags Flags) *table {
	return &table{
		values: make(map[string]string),
		fold:   flags&FlagFoldFixed != 0,
	}
}

func (t *table) key(key string) string {
	if t.fold {
		return foldKey(key)
	}
	return key
}

// put stores value under key unless key is already present. It reports
// whether the value was stored.
func (t *table) put(key, value string) bool {
	k := t.key(key)
	if _, dup := t.values[k]; dup {
		return false
	}
	t.values[k] = value
	return true
}

func (t *table) Lookup(key string) (string, bool, error) {
	value, ok := t.values[t.key(key)]
	return value, ok, nil
}

func (t *table) Flags() Flags {
	return FlagFixed | FlagSrcRHSIsFile | FlagFoldFixed | FlagLock
}

func (t *table) Close() error {
	t.values = nil
	return nil
}
