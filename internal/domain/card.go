package domain

// CardEntry 描述一次扫描得到的卡槽目录（只做 stat，不读内容）。
//
// 不变量：
// - SrcDir / SrcFile 必须是 clean + absolute
// - SrcFile 一定是 SrcDir 下的 "{目录名}-1.raw"
type CardEntry struct {
	SrcDir  string
	SrcFile string
	Name    string // 目录名，例如 GAFE0100
	Scheme  Scheme
	GameID  GameID
	Region3 string // 仅 GCMCE 来源有值
}

// InvalidEntry 描述形态上像卡槽目录、但无法安全解析的条目（例如 GameID 长度不对）。
// 它不会阻断其他条目的扫描，但会在计划中记为 error。
type InvalidEntry struct {
	SrcDir    string
	SrcFile   string
	Name      string
	ErrorCode string
	ErrorMsg  string
}
