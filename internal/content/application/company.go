// Package application 站点内容（公司信息）
package application

import (
	"github.com/wyfcoding/storefront/pkg/config"
)

// CompanyInfo 公司信息，启动时从配置加载，进程内只读
type CompanyInfo = config.CompanyConfig

// ContentService 站点内容服务
type ContentService struct {
	company CompanyInfo
}

// NewContentService 创建内容服务，名称为空时使用默认站点名
func NewContentService(cfg config.CompanyConfig) *ContentService {
	if cfg.Name == "" {
		cfg.Name = "Storefront"
	}
	return &ContentService{company: cfg}
}

// Company 返回公司信息副本
func (s *ContentService) Company() CompanyInfo {
	return s.company
}
