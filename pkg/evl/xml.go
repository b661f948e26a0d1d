package evl

import "github.com/evl-lang/evl/internal/xmlconv"

func convertToXML(source string) (string, error) {
	return xmlconv.Convert(source)
}
