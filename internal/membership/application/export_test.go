package application

import "time"

// SetClock 测试中固定当前时间
func (s *MembershipService) SetClock(now func() time.Time) {
	s.now = now
}
