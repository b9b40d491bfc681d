package processor

// dedupKey 上游没有稳定的文章 ID，只能用 (title, url) 判定是否为同一篇
type dedupKey struct {
	title string
	url   string
}

// SeenSet 单个请求内的去重集合，不在请求之间共享
type SeenSet map[dedupKey]struct{}

func NewSeenSet() SeenSet {
	return make(SeenSet)
}

// Add 返回 false 表示该 (title, url) 已经出现过
func (s SeenSet) Add(title, url string) bool {
	k := dedupKey{title: title, url: url}
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

func (s SeenSet) Len() int {
	return len(s)
}
