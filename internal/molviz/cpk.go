package molviz

// cpkColors maps lower-case element symbols to their CPK (Jmol) colors.
var cpkColors = map[string]RGB8{
	"h":  {255, 255, 255},
	"he": {217, 255, 255},
	"li": {204, 128, 255},
	"be": {194, 255, 0},
	"b":  {255, 181, 181},
	"c":  {144, 144, 144},
	"n":  {48, 80, 248},
	"o":  {255, 13, 13},
	"f":  {144, 224, 80},
	"ne": {179, 227, 245},
	"na": {171, 92, 242},
	"mg": {138, 255, 0},
	"al": {191, 166, 166},
	"si": {240, 200, 160},
	"p":  {255, 128, 0},
	"s":  {255, 255, 48},
	"cl": {31, 240, 31},
	"ar": {128, 209, 227},
	"k":  {143, 64, 212},
	"ca": {61, 255, 0},
	"mn": {156, 122, 199},
	"fe": {224, 102, 51},
	"co": {240, 144, 160},
	"ni": {80, 208, 80},
	"cu": {200, 128, 51},
	"zn": {125, 128, 176},
	"se": {255, 161, 0},
	"br": {166, 41, 41},
	"i":  {148, 0, 148},
}

// unknownElementColor is used for symbols missing from the table.
var unknownElementColor = RGB8{255, 20, 147}

func elementColor(symbol string) RGB8 {
	if c, ok := cpkColors[symbol]; ok {
		return c
	}
	return unknownElementColor
}
