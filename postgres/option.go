package postgres

// Option can be used to change the configuration of an object.
type Option[T any] interface {
	apply(T)
}

type option[T any] func(T)

func newOption[T any](f func(T)) option[T] { return option[T](f) }

func (apply option[T]) apply(val T) { apply(val) }

// WithPartitionCapacity sets the number of events per physical partition
// used by the Journal. It must never change once events have been written.
func WithPartitionCapacity(capacity uint64) Option[*Journal] {
	return newOption(func(j *Journal) {
		if capacity > 0 {
			j.capacity = capacity
		}
	})
}
