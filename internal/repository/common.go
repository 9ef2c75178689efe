// Package repository 提供监控数据的持久化访问
package repository

// Pagination 分页参数
type Pagination struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"limit" json:"limit"`
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.Limit()
}

// Limit 计算每页数量
func (p *Pagination) Limit() int {
	if p.PageSize <= 0 {
		return 50
	}
	if p.PageSize > 500 {
		return 500
	}
	return p.PageSize
}
