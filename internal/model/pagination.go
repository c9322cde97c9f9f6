package model

// ページングの既定値。
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination はページ番号（1始まり）と1ページあたりの件数を表す。
type Pagination struct {
	Page  int
	Limit int
}

// Normalize は範囲外の値を既定値に丸めたPaginationを返す。
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset はSQLのOFFSETに渡す値を返す。
func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}
