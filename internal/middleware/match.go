package middleware

import "context"

type matchInfoKey struct{}

// MatchInfo receives the name of the rule matched further down the handler chain,
// letting outer layers such as access logging label requests by rule.
type MatchInfo struct {
	Rule string
}

// ContextWithMatchInfo attaches an empty MatchInfo to ctx.
func ContextWithMatchInfo(ctx context.Context) (context.Context, *MatchInfo) {
	info := &MatchInfo{}
	return context.WithValue(ctx, matchInfoKey{}, info), info
}

func matchInfoFromContext(ctx context.Context) *MatchInfo {
	info, _ := ctx.Value(matchInfoKey{}).(*MatchInfo)
	return info
}
