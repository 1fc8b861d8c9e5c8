package shared

// BaseFilter provides common filtering options for list queries
type BaseFilter struct {
	Search   string
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// Normalize applies defaults and bounds to pagination parameters
func (f *BaseFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// Offset returns the query offset for the current page
func (f *BaseFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
