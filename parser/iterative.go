package parser

import (
	"github.com/benoitkugler/pdfcore/model"
	tkn "github.com/benoitkugler/pdfcore/tokenizer"
)

// past the recursion cap, containers are parsed with an explicit work
// stack, so that arbitrarily deep input still parses in bounded
// call-stack space

type containerFrame struct {
	arr  Array // valid when dict is nil
	dict *Dict

	key      Name // pending dictionary key
	hasKey   bool
	startDic bool
}

// parseContainerIterative parses one array or dictionary whose opening
// token was just consumed, without recursing.
func (p *Parser) parseContainerIterative(opening tkn.Kind) (Object, error) {
	stack := []containerFrame{newFrame(opening)}

	for {
		top := &stack[len(stack)-1]

		tk, err := p.tokens.PeekToken()
		if err != nil {
			return nil, err
		}

		switch tk.Kind {
		case tkn.EOF:
			if top.startDic {
				return nil, errDictionaryNotTerminated
			}
			return nil, errArrayNotTerminated

		case tkn.EndArray:
			if top.startDic {
				return nil, errDictionaryCorrupt
			}
			_, _ = p.tokens.NextToken()
			done, out, err := p.popFrame(&stack)
			if err != nil {
				return nil, err
			}
			if done {
				return out, nil
			}

		case tkn.EndDic:
			if !top.startDic {
				return nil, errArrayNotTerminated
			}
			if top.hasKey {
				return nil, errDictionaryCorrupt
			}
			_, _ = p.tokens.NextToken()
			done, out, err := p.popFrame(&stack)
			if err != nil {
				return nil, err
			}
			if done {
				return out, nil
			}

		case tkn.StartArray:
			if err := top.expectValue(); err != nil {
				return nil, err
			}
			_, _ = p.tokens.NextToken()
			stack = append(stack, newFrame(tkn.StartArray))

		case tkn.StartDic:
			if err := top.expectValue(); err != nil {
				return nil, err
			}
			_, _ = p.tokens.NextToken()
			stack = append(stack, newFrame(tkn.StartDic))

		case tkn.Name:
			if top.startDic && !top.hasKey {
				_, _ = p.tokens.NextToken()
				top.key, top.hasKey = Name(tk.Value), true
				continue
			}
			_, _ = p.tokens.NextToken()
			if err := top.attach(Name(tk.Value), p.Lenient); err != nil {
				return nil, err
			}

		default:
			// scalar values (numbers, strings, keywords, references)
			// never recurse into containers
			obj, err := p.parseValue(p.maxDepth())
			if err != nil {
				return nil, err
			}
			if err := top.attach(obj, p.Lenient); err != nil {
				return nil, err
			}
		}
	}
}

func newFrame(opening tkn.Kind) containerFrame {
	if opening == tkn.StartDic {
		return containerFrame{dict: model.NewDict(), startDic: true}
	}
	return containerFrame{arr: Array{}}
}

func (f *containerFrame) value() Object {
	if f.startDic {
		return f.dict
	}
	return f.arr
}

func (f *containerFrame) expectValue() error {
	if f.startDic && !f.hasKey {
		return errDictionaryCorrupt
	}
	return nil
}

func (f *containerFrame) attach(obj Object, lenient bool) error {
	if !f.startDic {
		f.arr = append(f.arr, obj)
		return nil
	}
	if !f.hasKey {
		return errDictionaryCorrupt
	}
	key := f.key
	f.hasKey = false
	if _, isNull := obj.(model.ObjNull); isNull {
		return nil
	}
	if f.dict.Get(key) != nil {
		if !lenient {
			return errDictionaryDuplicateKey
		}
		return nil
	}
	f.dict.Set(key, obj)
	return nil
}

// popFrame closes the top container: either the parse is complete, or
// the container is attached to its parent.
func (p *Parser) popFrame(stack *[]containerFrame) (done bool, out Object, err error) {
	top := (*stack)[len(*stack)-1]
	*stack = (*stack)[:len(*stack)-1]
	if len(*stack) == 0 {
		return true, top.value(), nil
	}
	parent := &(*stack)[len(*stack)-1]
	return false, nil, parent.attach(top.value(), p.Lenient)
}
