package activity

// Default paging values.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ListActivityOptions selects one page of activity history.
type ListActivityOptions struct {
	Page     int
	PageSize int
}

// withDefaults clamps paging values into range.
func (o ListActivityOptions) withDefaults() ListActivityOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	return o
}
