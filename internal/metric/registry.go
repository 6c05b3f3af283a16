package metric

import "fmt"

var byName = map[string]Metric{
	Angular{}.Name():     Angular{},
	Euclidean{}.Name():   Euclidean{},
	Manhattan{}.Name():   Manhattan{},
	Dot{}.Name():         Dot{},
	Hamming{}.Name():     Hamming{},
	BQAngular{}.Name():   BQAngular{},
	BQEuclidean{}.Name(): BQEuclidean{},
	BQManhattan{}.Name(): BQManhattan{},
}

// ErrUnknownMetric is returned by Lookup for a name no built-in metric owns.
type ErrUnknownMetric struct{ Name string }

func (e *ErrUnknownMetric) Error() string {
	return fmt.Sprintf("metric: unknown distance metric %q", e.Name)
}

// Lookup returns the registered Metric for name, or an *ErrUnknownMetric.
func Lookup(name string) (Metric, error) {
	m, ok := byName[name]
	if !ok {
		return nil, &ErrUnknownMetric{Name: name}
	}
	return m, nil
}

// Names returns every built-in metric name, for validation and CLI help text.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	return names
}
